// Package observer watches new blocks and reports the confirmation depth of a
// transaction once its receipt is available.
package observer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txobserver/internal/metrics"
	"github.com/vultisig/txobserver/rpc"
	"github.com/vultisig/txobserver/types"
)

const DefaultRequiredConfirmations = 24

var errSubscriptionClosed = errors.New("head subscription closed")

type Config struct {
	// RequiredConfirmations ends an observation once reached. Zero observes until cancelled.
	RequiredConfirmations uint64 `mapstructure:"required_confirmations" json:"required_confirmations" envconfig:"REQUIRED_CONFIRMATIONS" default:"24"`
}

func DefaultConfig() Config {
	return Config{
		RequiredConfirmations: DefaultRequiredConfirmations,
	}
}

// Sink receives the events of one observation, in order, from a single goroutine.
type Sink interface {
	OnConfirmation(c types.Confirmation)
	OnError(err error)
	OnComplete()
}

type Observer struct {
	logger    *logrus.Entry
	transport rpc.Transport
	metrics   metrics.ObserverMetrics
	required  uint64
}

func New(logger *logrus.Logger, transport rpc.Transport, m metrics.ObserverMetrics, cfg Config) *Observer {
	if m == nil {
		m = metrics.NewNilObserverMetrics()
	}
	return &Observer{
		logger:    logger.WithField("pkg", "observer.Observer"),
		transport: transport,
		metrics:   m,
		required:  cfg.RequiredConfirmations,
	}
}

// Observe starts watching hash. The observation runs until the required depth
// is reached, the stream fails, ctx ends or the subscription is cancelled.
func (o *Observer) Observe(c context.Context, hash common.Hash, sink Sink) *Subscription {
	ctx, cancel := context.WithCancel(c)
	s := &Subscription{
		hash:   hash,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.metrics.ObservationStarted()
	go func() {
		defer close(s.done)
		defer o.metrics.ObservationFinished()
		defer cancel()

		o.run(ctx, s, sink)
	}()
	return s
}

type progress struct {
	last    uint64
	emitted bool
}

func (o *Observer) run(ctx context.Context, s *Subscription, sink Sink) {
	logger := o.logger.WithField("tx_hash", s.hash.Hex())

	sub, err := o.transport.SubscribeNewHeads(ctx)
	if err != nil {
		s.fail(sink, &types.ObserverError{Err: fmt.Errorf("o.transport.SubscribeNewHeads: %w", err)})
		return
	}
	defer sub.Unsubscribe()

	var p progress
	for {
		select {
		case <-ctx.Done():
			s.fail(sink, &types.ObserverError{Err: ctx.Err()})
			return
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				err = errSubscriptionClosed
			}
			s.fail(sink, &types.ObserverError{Err: err})
			return
		case head, ok := <-sub.Heads():
			if !ok {
				s.fail(sink, &types.ObserverError{Err: errSubscriptionClosed})
				return
			}
			if head == nil || head.Number == nil {
				continue
			}
			if o.onHead(ctx, logger, s, sink, head, &p) {
				return
			}
		}
	}
}

// onHead reports whether the observation is over.
func (o *Observer) onHead(
	ctx context.Context,
	logger *logrus.Entry,
	s *Subscription,
	sink Sink,
	head *gethtypes.Header,
	p *progress,
) bool {
	height := head.Number.Uint64()
	o.metrics.SetChainHeight(float64(height))

	rec, err := rpc.Execute(ctx, o.transport, rpc.GetTransactionReceipt(s.hash))
	if err != nil {
		s.fail(sink, &types.ObserverError{Err: fmt.Errorf("get receipt: %w", err)})
		return true
	}
	if rec == nil || rec.BlockNumber == nil {
		return false
	}

	var count uint64
	if mined := rec.BlockNumber.Uint64(); height > mined {
		count = height - mined
	}
	if p.emitted && count < p.last {
		logger.WithFields(logrus.Fields{
			"head":  height,
			"count": count,
			"last":  p.last,
		}).Debug("confirmation count went back, skipping")
		return false
	}
	p.last, p.emitted = count, true

	if s.Cancelled() {
		return true
	}
	sink.OnConfirmation(types.Confirmation{Count: count, Receipt: rec})
	if s.Cancelled() {
		return true
	}

	if o.required > 0 && count >= o.required {
		logger.WithField("count", count).Debug("required confirmations reached")
		sink.OnComplete()
		return true
	}
	return false
}

// Subscription controls one observation.
type Subscription struct {
	hash      common.Hash
	cancelled atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Cancel stops the observation. Once it has been called no further event is
// handed to the sink, including items already fetched for the current head.
// Safe to call from a Sink method and more than once.
func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

func (s *Subscription) Cancelled() bool {
	return s.cancelled.Load()
}

// Done is closed when the observation goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Hash() common.Hash {
	return s.hash
}

func (s *Subscription) fail(sink Sink, err error) {
	if s.Cancelled() {
		return
	}
	sink.OnError(err)
}
