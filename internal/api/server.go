package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/handle"
	"github.com/vultisig/txobserver/internal/health"
	"github.com/vultisig/txobserver/internal/journal"
	"github.com/vultisig/txobserver/internal/logging"
	"github.com/vultisig/txobserver/internal/metrics"
	"github.com/vultisig/txobserver/internal/status"
	"github.com/vultisig/txobserver/types"
)

type Config struct {
	Host string `mapstructure:"host" json:"host,omitempty" envconfig:"SERVER_HOST"`
	Port int64  `mapstructure:"port" json:"port,omitempty" envconfig:"SERVER_PORT" default:"8080"`
	// JWTSecret enables bearer authentication of /v1 when set.
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret,omitempty" envconfig:"SERVER_JWT_SECRET"`
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Submitter interface {
	Send(ctx context.Context, req types.TransactionRequest, setup ...executor.Setup) *handle.Handle
}

type StatusReader interface {
	Get(ctx context.Context, id uuid.UUID) (status.Snapshot, error)
}

type JournalReader interface {
	GetTxByID(ctx context.Context, id uuid.UUID) (journal.Tx, error)
}

type Server struct {
	cfg       Config
	logger    *logrus.Logger
	submitter Submitter
	status    StatusReader
	journal   JournalReader
	checker   *health.Checker
	auth      *Authenticator
	e         *echo.Echo

	// observations outlive the request that started them
	baseCtx context.Context
}

// NewServer wires the routes. status, journal and checker are optional.
func NewServer(
	cfg Config,
	logger *logrus.Logger,
	submitter Submitter,
	statusReader StatusReader,
	journalReader JournalReader,
	checker *health.Checker,
	httpMetrics *metrics.HTTPMetrics,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		submitter: submitter,
		status:    statusReader,
		journal:   journalReader,
		checker:   checker,
		baseCtx:   context.Background(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(logging.LoggerMiddleware(logger))
	e.Use(httpMetrics.Middleware())

	e.GET("/healthz", s.Healthz)
	e.GET("/readyz", s.Readyz)

	txGroup := e.Group("/v1/transactions")
	if cfg.JWTSecret != "" {
		s.auth = NewAuthenticator(cfg.JWTSecret)
		txGroup.Use(s.AuthMiddleware)
	}
	txGroup.POST("", s.SubmitTransaction)
	txGroup.GET("/:id", s.GetTransaction)

	s.e = e
	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.Addr()).Info("starting api server")
		err := s.e.Start(s.cfg.Addr())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("s.e.Start: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.e.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("s.e.Shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) Healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) Readyz(c echo.Context) error {
	if s.checker == nil {
		return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, map[string]string{}))
	}
	results, ok := s.checker.Run(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, NewSuccessResponse(http.StatusServiceUnavailable, results))
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, results))
}
