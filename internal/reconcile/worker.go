// Package reconcile finalizes journal rows whose observation was abandoned,
// for example by a restart, by reading the outcome back from the node.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/internal/conv"
	"github.com/vultisig/txobserver/internal/journal"
	"github.com/vultisig/txobserver/internal/metrics"
	"github.com/vultisig/txobserver/rpc"
	"github.com/vultisig/txobserver/types"
)

type Config struct {
	Interval              time.Duration `mapstructure:"interval" json:"interval" envconfig:"RECONCILE_INTERVAL" default:"1m"`
	IterationTimeout      time.Duration `mapstructure:"iteration_timeout" json:"iteration_timeout" envconfig:"RECONCILE_ITERATION_TIMEOUT" default:"5m"`
	StaleAfter            time.Duration `mapstructure:"stale_after" json:"stale_after" envconfig:"RECONCILE_STALE_AFTER" default:"10m"`
	MarkLostAfter         time.Duration `mapstructure:"mark_lost_after" json:"mark_lost_after" envconfig:"RECONCILE_MARK_LOST_AFTER" default:"30m"`
	Concurrency           int           `mapstructure:"concurrency" json:"concurrency" envconfig:"RECONCILE_CONCURRENCY" default:"10"`
	RequiredConfirmations uint64        `mapstructure:"required_confirmations" json:"required_confirmations" envconfig:"REQUIRED_CONFIRMATIONS" default:"24"`
}

// ActiveSet reports the submissions an executor in this process is still
// observing. *executor.Executor implements it.
type ActiveSet interface {
	Observing(id uuid.UUID) bool
}

type Worker struct {
	logger                *logrus.Entry
	repo                  journal.Repo
	transport             rpc.Transport
	active                ActiveSet
	interval              time.Duration
	iterationTimeout      time.Duration
	staleAfter            time.Duration
	markLostAfter         time.Duration
	concurrency           int
	requiredConfirmations uint64
	metrics               metrics.ReconcileMetrics
}

func NewWorker(
	logger *logrus.Logger,
	cfg Config,
	repo journal.Repo,
	transport rpc.Transport,
	active ActiveSet,
	m metrics.ReconcileMetrics,
) *Worker {
	if m == nil {
		m = metrics.NewNilReconcileMetrics()
	}
	return &Worker{
		logger:                logger.WithField("pkg", "reconcile.Worker"),
		repo:                  repo,
		transport:             transport,
		active:                active,
		interval:              cfg.Interval,
		iterationTimeout:      cfg.IterationTimeout,
		staleAfter:            cfg.StaleAfter,
		markLostAfter:         cfg.MarkLostAfter,
		concurrency:           conv.ValueOrDefault(cfg.Concurrency, 1),
		requiredConfirmations: cfg.RequiredConfirmations,
		metrics:               m,
	}
}

// Run reconciles once immediately and then every interval until ctx is done.
func (w *Worker) Run(aliveCtx context.Context) error {
	err := w.reconcileStale(aliveCtx)
	if err != nil {
		w.logger.Errorf("processing error, continue loop: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-aliveCtx.Done():
			w.logger.Info("context done & no processing: stop worker")
			return nil
		case <-ticker.C:
			er := w.reconcileStale(aliveCtx)
			if er != nil {
				w.logger.Errorf("processing error, continue loop: %v", er)
			}
		}
	}
}

func (w *Worker) reconcileStale(c context.Context) error {
	ctx, cancel := context.WithTimeout(c, w.iterationTimeout)
	defer cancel()

	start := time.Now()
	w.logger.Info("worker tick")
	w.metrics.SetLastProcessingTimestamp(float64(start.Unix()))

	eg := &errgroup.Group{}
	eg.SetLimit(w.concurrency)
	count := &atomic.Uint64{}

	for row := range w.repo.GetStaleTxs(ctx, start.Add(-w.staleAfter)) {
		eg.Go(func() error {
			if row.Err != nil {
				return fmt.Errorf("row.Err: %w", row.Err)
			}

			status, err := w.ReconcileTx(ctx, row.Row)
			if err != nil {
				return fmt.Errorf("w.ReconcileTx: %w", err)
			}
			if status.Terminal() {
				count.Add(1)
			}
			return nil
		})
	}

	err := eg.Wait()
	w.metrics.RecordIterationDuration(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("eg.Wait: %w", err)
	}

	w.logger.WithField("tx_count", count.Load()).Info("stale transactions reconciled")
	return nil
}

// ReconcileTx reads the on-chain state of tx and finalizes its row when the
// outcome is known. It returns the resulting status. Rows still observed by
// the local executor are left to it.
func (w *Worker) ReconcileTx(ctx context.Context, tx journal.Tx) (types.TxStatus, error) {
	logger := w.logger.WithFields(tx.Fields())

	if w.active != nil && w.active.Observing(tx.ID) {
		logger.Debug("still observed locally, skipping")
		return types.TxPending, nil
	}

	if tx.TxHash == nil {
		return w.markLostIfExpired(ctx, logger, tx, tx.CreatedAt)
	}
	hash := common.HexToHash(*tx.TxHash)

	receipt, err := rpc.Execute(ctx, w.transport, rpc.GetTransactionReceipt(hash))
	if err != nil {
		w.metrics.RecordRPCError()
		return types.TxPending, fmt.Errorf("get receipt: %w", err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return w.markLostIfExpired(ctx, logger, tx, conv.FromPtr(tx.BroadcastedAt))
	}
	rec := types.NewReceipt(receipt)

	head, err := rpc.Execute(ctx, w.transport, rpc.BlockNumber())
	if err != nil {
		w.metrics.RecordRPCError()
		return types.TxPending, fmt.Errorf("get block number: %w", err)
	}
	var confirmations uint64
	if head > rec.BlockNumber {
		confirmations = head - rec.BlockNumber
	}

	var cause error
	if !rec.Status {
		cause = executor.Classify(rec, tx.Gas)
		var reverted *types.RevertedError
		if errors.As(cause, &reverted) {
			reverted.Reason = w.revertReason(ctx, hash, receipt)
		}
	} else if w.requiredConfirmations > 0 && confirmations < w.requiredConfirmations {
		err = w.repo.Confirmed(ctx, tx.ID, confirmations)
		if err != nil {
			return types.TxPending, fmt.Errorf("w.repo.Confirmed: %w", err)
		}
		logger.WithField("confirmations", confirmations).Debug("mined, waiting for confirmations")
		return types.TxPending, nil
	}

	outcome := journal.Outcome{
		Status:        types.StatusOf(cause),
		Confirmations: confirmations,
		BlockNumber:   conv.Ptr(rec.BlockNumber),
	}
	if cause != nil {
		outcome.ErrorMessage = conv.Ptr(cause.Error())
	}
	err = w.repo.SetOutcome(ctx, tx.ID, outcome)
	if err != nil {
		return types.TxPending, fmt.Errorf("w.repo.SetOutcome: %w", err)
	}

	w.metrics.RecordReconciled(string(outcome.Status))
	logger.Infof("status updated, newStatus=%s", outcome.Status)
	return outcome.Status, nil
}

func (w *Worker) markLostIfExpired(
	ctx context.Context,
	logger *logrus.Entry,
	tx journal.Tx,
	since time.Time,
) (types.TxStatus, error) {
	if since.IsZero() {
		since = tx.CreatedAt
	}
	if time.Now().Before(since.Add(w.markLostAfter)) {
		return types.TxPending, nil
	}

	err := w.repo.SetLost(ctx, tx.ID)
	if err != nil {
		return types.TxPending, fmt.Errorf("w.repo.SetLost: %w", err)
	}
	w.metrics.RecordReconciled(string(types.TxLost))
	logger.Info("updated as lost (timeout since broadcast)")
	return types.TxLost, nil
}

// revertReason replays the transaction with eth_call at its block and decodes
// the revert payload. An empty string means no reason could be recovered.
func (w *Worker) revertReason(ctx context.Context, hash common.Hash, receipt *gethtypes.Receipt) string {
	tx, err := rpc.Execute(ctx, w.transport, rpc.GetTransactionByHash(hash))
	if err != nil || tx == nil || tx.To() == nil {
		return ""
	}

	req := types.TransactionRequest{
		To:    tx.To(),
		Value: tx.Value(),
		Gas:   tx.Gas(),
		Data:  tx.Data(),
	}
	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err == nil {
		req.From = sender
	}

	_, err = rpc.Execute(ctx, w.transport, rpc.Call(req, gethrpc.BlockNumber(receipt.BlockNumber.Int64())))
	if err == nil {
		return ""
	}
	msg, ok := rpc.DecodeRevert(rpc.RevertData(err))
	if !ok {
		return ""
	}
	return msg
}
