package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/txobserver/config"
	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/internal/api"
	"github.com/vultisig/txobserver/internal/graceful"
	"github.com/vultisig/txobserver/internal/health"
	"github.com/vultisig/txobserver/internal/journal"
	"github.com/vultisig/txobserver/internal/logging"
	"github.com/vultisig/txobserver/internal/metrics"
	"github.com/vultisig/txobserver/internal/reconcile"
	"github.com/vultisig/txobserver/internal/status"
	"github.com/vultisig/txobserver/observer"
	"github.com/vultisig/txobserver/rpc"
)

func readConfig() (*config.Config, error) {
	if os.Getenv("TXOBSERVER_CONFIG_FROM_ENV") == "true" {
		return config.ReadEnvConfig()
	}
	return config.GetConfigure()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := readConfig()
	if err != nil {
		panic(fmt.Errorf("config.ReadConfig: %w", err))
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.Level())

	go graceful.HandleSignals(func() {
		logger.Info("shutdown signal received")
		cancel()
	})

	registry := prometheus.NewRegistry()
	services := []string{metrics.ServiceObserver, metrics.ServiceHTTP}

	client, err := rpc.Dial(ctx, logger, cfg.RPC.URL, cfg.RPC.PollInterval)
	if err != nil {
		panic(fmt.Errorf("rpc.Dial: %w", err))
	}
	defer client.Close()

	checker := health.New(logger)
	checker.Add("rpc", func(ctx context.Context) error {
		_, er := rpc.Execute(ctx, client, rpc.BlockNumber())
		return er
	})

	var (
		trackers      executor.MultiTracker
		journalReader api.JournalReader
		statusReader  api.StatusReader
		repo          journal.Repo
	)

	if cfg.Database.DSN != "" {
		pg, er := journal.NewPostgresJournal(ctx, logger, cfg.Database.DSN)
		if er != nil {
			panic(fmt.Errorf("journal.NewPostgresJournal: %w", er))
		}
		defer pg.Close()

		repo = pg
		trackers = append(trackers, pg)
		journalReader = pg
		checker.Add("journal", pg.Ping)
		services = append(services, metrics.ServiceReconcile)
	} else {
		logger.Warn("database dsn is empty, journal and reconcile worker disabled")
	}

	if cfg.Redis.ConnURI != "" || cfg.Redis.Host != "" {
		store, er := status.NewStore(ctx, cfg.Redis)
		if er != nil {
			panic(fmt.Errorf("status.NewStore: %w", er))
		}
		defer func() {
			_ = store.Close()
		}()

		trackers = append(trackers, store)
		statusReader = store
		checker.Add("redis", store.Ping)
	} else {
		logger.Warn("redis is not configured, live status snapshots disabled")
	}

	metrics.RegisterMetrics(services, registry, logger)
	observerMetrics := metrics.NewObserverMetrics()

	obs := observer.New(logger, client, observerMetrics, cfg.Observer)
	exec := executor.New(logger, client, obs, trackers, observerMetrics, cfg.Executor)
	server := api.NewServer(cfg.Server, logger, exec, statusReader, journalReader, checker, metrics.NewHTTPMetrics())

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Run(egCtx)
	})
	if repo != nil {
		worker := reconcile.NewWorker(logger, cfg.Reconcile, repo, client, exec, metrics.NewReconcileMetrics())
		eg.Go(func() error {
			return worker.Run(egCtx)
		})
	}
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, logger, registry)
		eg.Go(func() error {
			return metricsServer.Run(egCtx)
		})
	}

	err = eg.Wait()
	if err != nil {
		panic(fmt.Errorf("eg.Wait: %w", err))
	}
	logger.Info("stopped")
}
