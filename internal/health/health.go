package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 5 * time.Second

type Check func(ctx context.Context) error

type named struct {
	name  string
	check Check
}

// Checker runs readiness checks of the service dependencies.
type Checker struct {
	logger *logrus.Entry
	mu     sync.RWMutex
	checks []named
}

func New(logger *logrus.Logger) *Checker {
	return &Checker{
		logger: logger.WithField("pkg", "health.Checker"),
	}
}

func (c *Checker) Add(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, named{name: name, check: check})
}

// Run executes every check concurrently and returns "ok" or the error text per check.
func (c *Checker) Run(ctx context.Context) (map[string]string, bool) {
	c.mu.RLock()
	checks := append([]named(nil), c.checks...)
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		results = make(map[string]string, len(checks))
	)
	for _, n := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := n.check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				healthy = false
				results[n.name] = err.Error()
				c.logger.WithError(err).WithField("check", n.name).Warn("readiness check failed")
				return
			}
			results[n.name] = "ok"
		}()
	}
	wg.Wait()
	return results, healthy
}

// Ready is Run reduced to one error naming the first failing check.
func (c *Checker) Ready(ctx context.Context) error {
	results, ok := c.Run(ctx)
	if ok {
		return nil
	}
	for name, res := range results {
		if res != "ok" {
			return fmt.Errorf("%s: %s", name, res)
		}
	}
	return nil
}
