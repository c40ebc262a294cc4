// Package executor submits transactions and drives their observation into a
// handle.Handle until exactly one terminal outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txobserver/handle"
	"github.com/vultisig/txobserver/internal/metrics"
	"github.com/vultisig/txobserver/observer"
	"github.com/vultisig/txobserver/rpc"
	"github.com/vultisig/txobserver/types"
)

const trackerTimeout = 10 * time.Second

type Config struct {
	// Prefill fills a missing gas price and gas limit from the node before submission.
	Prefill bool `mapstructure:"prefill" json:"prefill" envconfig:"PREFILL"`
	// GasPrice is used for requests without a gas price before asking the node.
	// Zero means unset.
	GasPrice *big.Int `mapstructure:"gas_price" json:"gas_price,omitempty" envconfig:"GAS_PRICE"`
}

type Executor struct {
	logger    *logrus.Entry
	transport rpc.Transport
	observer  *observer.Observer
	tracker   Tracker
	metrics   metrics.ObserverMetrics
	prefill   bool
	gasPrice  *big.Int

	// ids of submissions whose run has not returned yet
	active sync.Map
}

func New(
	logger *logrus.Logger,
	transport rpc.Transport,
	obs *observer.Observer,
	tracker Tracker,
	m metrics.ObserverMetrics,
	cfg Config,
) *Executor {
	if tracker == nil {
		tracker = NilTracker{}
	}
	if m == nil {
		m = metrics.NewNilObserverMetrics()
	}
	gasPrice := cfg.GasPrice
	if gasPrice != nil && gasPrice.Sign() <= 0 {
		gasPrice = nil
	}
	return &Executor{
		logger:    logger.WithField("pkg", "executor.Executor"),
		transport: transport,
		observer:  obs,
		tracker:   tracker,
		metrics:   m,
		prefill:   cfg.Prefill,
		gasPrice:  gasPrice,
	}
}

// Observing reports whether the submission with id is still being submitted
// or observed by this executor.
func (e *Executor) Observing(id uuid.UUID) bool {
	_, ok := e.active.Load(id)
	return ok
}

func (e *Executor) start(ctx context.Context, em *handle.Emitter, sub submission) {
	e.active.Store(sub.id, struct{}{})
	go func() {
		defer e.active.Delete(sub.id)
		e.run(ctx, em, sub)
	}()
}

// Setup runs on the returned handle before the submission starts, so the
// listeners it registers see every event.
type Setup func(h *handle.Handle)

type submission struct {
	id  uuid.UUID
	req types.TransactionRequest
	raw []byte
}

// Send submits req with eth_sendTransaction. ctx bounds both the submission
// and the observation.
func (e *Executor) Send(ctx context.Context, req types.TransactionRequest, setup ...Setup) *handle.Handle {
	h, em := handle.New()
	for _, fn := range setup {
		fn(h)
	}

	e.start(ctx, em, submission{
		id:  h.ID(),
		req: req.Copy(),
	})
	return h
}

// SendRaw submits a signed transaction with eth_sendRawTransaction. The gas
// limit used for failure classification is read from the transaction itself.
func (e *Executor) SendRaw(ctx context.Context, rawTx []byte, setup ...Setup) *handle.Handle {
	h, em := handle.New()
	for _, fn := range setup {
		fn(h)
	}

	e.start(ctx, em, submission{
		id:  h.ID(),
		raw: common.CopyBytes(rawTx),
	})
	return h
}

func (e *Executor) run(ctx context.Context, em *handle.Emitter, sub submission) {
	start := time.Now()
	logger := e.logger.WithField("id", sub.id.String())

	req, err := e.prepare(sub)
	if err != nil {
		logger.WithError(err).Warn("transaction not submitted")
		e.metrics.RecordSubmission("failed")
		em.Reject(err, nil, 0)
		return
	}
	if sub.raw == nil && req.GasPrice == nil && e.gasPrice != nil {
		req.GasPrice = new(big.Int).Set(e.gasPrice)
	}
	var prefillErr error
	if sub.raw == nil && e.prefill {
		req, prefillErr = e.prefillRequest(ctx, req)
	}
	logger = logger.WithFields(req.Fields())

	e.track(logger, "Created", func(tctx context.Context) error {
		return e.tracker.Created(tctx, sub.id, req)
	})

	if prefillErr != nil {
		logger.WithError(prefillErr).Error("failed to prefill transaction")
		e.metrics.RecordSubmission("failed")
		e.finalize(logger, sub.id, em, start, prefillErr, nil, 0)
		return
	}

	method := rpc.SendTransaction(req)
	if sub.raw != nil {
		method = rpc.SendRawTransaction(sub.raw)
	}

	hash, err := rpc.Execute(ctx, e.transport, method)
	if err != nil {
		err = &types.TransportError{Op: method.Name, Err: err}
		logger.WithError(err).Error("failed to submit transaction")
		e.metrics.RecordSubmission("failed")
		e.finalize(logger, sub.id, em, start, err, nil, 0)
		return
	}
	e.metrics.RecordSubmission("accepted")
	logger = logger.WithField("tx_hash", hash.Hex())
	logger.Info("transaction submitted")

	e.track(logger, "HashKnown", func(tctx context.Context) error {
		return e.tracker.HashKnown(tctx, sub.id, hash)
	})
	em.TransactionHash(hash)

	s := &sink{
		e:      e,
		logger: logger,
		id:     sub.id,
		gas:    req.Gas,
		em:     em,
		start:  start,
		ready:  make(chan struct{}),
	}
	s.sub = e.observer.Observe(ctx, hash, s)
	close(s.ready)
	<-s.sub.Done()
}

// prepare validates a request or decodes a raw transaction.
func (e *Executor) prepare(sub submission) (types.TransactionRequest, error) {
	if sub.raw != nil {
		return decodeRaw(sub.raw)
	}
	err := sub.req.Validate()
	if err != nil {
		return sub.req, err
	}
	return sub.req, nil
}

func (e *Executor) prefillRequest(ctx context.Context, req types.TransactionRequest) (types.TransactionRequest, error) {
	if req.GasPrice == nil {
		price, err := rpc.Execute(ctx, e.transport, rpc.GasPrice())
		if err != nil {
			return req, &types.TransportError{Op: "eth_gasPrice", Err: err}
		}
		req.GasPrice = price
	}
	if req.Gas == 0 {
		gas, err := rpc.Execute(ctx, e.transport, rpc.EstimateGas(req))
		if err != nil {
			return req, &types.TransportError{Op: "eth_estimateGas", Err: err}
		}
		req.Gas = gas
	}
	return req, nil
}

func decodeRaw(raw []byte) (types.TransactionRequest, error) {
	tx := new(gethtypes.Transaction)
	err := tx.UnmarshalBinary(raw)
	if err != nil {
		return types.TransactionRequest{}, fmt.Errorf("tx.UnmarshalBinary: %w", err)
	}

	nonce := tx.Nonce()
	req := types.TransactionRequest{
		To:       tx.To(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Data:     tx.Data(),
		Nonce:    &nonce,
	}
	// sender is informational only, an unrecoverable signature is left to the node
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err == nil {
		req.From = from
	}
	return req, nil
}

func (e *Executor) track(logger *logrus.Entry, step string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), trackerTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		logger.WithError(err).WithField("step", step).Error("failed to track transaction")
	}
}

func (e *Executor) finalize(
	logger *logrus.Entry,
	id uuid.UUID,
	em *handle.Emitter,
	start time.Time,
	err error,
	receipt *types.Receipt,
	confirmations uint64,
) {
	status := types.StatusOf(err)
	logger = logger.WithFields(logrus.Fields{
		"status":        status,
		"confirmations": confirmations,
	})

	// The process is shutting down or the caller gave up: the outcome on chain
	// is unknown, so the record stays pending for reconciliation.
	if errors.Is(err, context.Canceled) {
		logger.Warn("observation abandoned, leaving transaction pending")
		em.Reject(err, receipt, confirmations)
		return
	}

	e.track(logger, "Finalized", func(tctx context.Context) error {
		return e.tracker.Finalized(tctx, id, Result{
			Status:        status,
			Receipt:       receipt,
			Confirmations: confirmations,
			Err:           err,
		})
	})
	e.metrics.RecordOutcome(string(status), time.Since(start).Seconds())
	logger.Info("transaction finalized")

	if err != nil {
		em.Reject(err, receipt, confirmations)
		return
	}
	em.Resolve(receipt)
}
