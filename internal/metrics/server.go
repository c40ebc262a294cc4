package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultPort = 8088

// Config holds metrics server configuration
type Config struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled,omitempty" envconfig:"METRICS_ENABLED" default:"true"`
	Host    string `mapstructure:"host" json:"host,omitempty" envconfig:"METRICS_HOST" default:"0.0.0.0"`
	Port    int    `mapstructure:"port" json:"port,omitempty" envconfig:"METRICS_PORT" default:"8088"`
	Token   string `mapstructure:"token" json:"token,omitempty" envconfig:"METRICS_TOKEN"`
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Host:    "0.0.0.0",
		Port:    defaultPort,
	}
}

func (c Config) Addr() string {
	port := c.Port
	if port <= 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Server serves /metrics for a custom registry
type Server struct {
	server *http.Server
	logger *logrus.Entry
}

func bearerAuth(next http.Handler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func NewServer(cfg Config, logger *logrus.Logger, registry *prometheus.Registry) *Server {
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	if cfg.Token != "" {
		handler = bearerAuth(handler, cfg.Token)
		logger.Info("Metrics endpoint authentication enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		logger: logger.WithField("pkg", "metrics.Server"),
	}
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting metrics server on %s", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("s.server.ListenAndServe: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutting down metrics server")
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
