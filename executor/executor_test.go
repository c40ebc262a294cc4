package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/txobserver/handle"
	"github.com/vultisig/txobserver/observer"
	"github.com/vultisig/txobserver/rpc"
	"github.com/vultisig/txobserver/rpc/rpctest"
	"github.com/vultisig/txobserver/types"
)

var (
	txHash    = common.HexToHash("0xabc")
	sender    = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	recipient = common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
)

func transferRequest(gas uint64) types.TransactionRequest {
	return types.TransactionRequest{
		From:     sender,
		To:       &recipient,
		Value:    big.NewInt(1),
		Gas:      gas,
		GasPrice: big.NewInt(1_000_000_000),
	}
}

func newTestExecutor(tr *rpctest.Transport, required uint64, tracker Tracker, cfg Config) *Executor {
	logger := logrus.New()
	obs := observer.New(logger, tr, nil, observer.Config{RequiredConfirmations: required})
	return New(logger, tr, obs, tracker, nil, cfg)
}

func waitFinalized(t *testing.T, h *handle.Handle) {
	t.Helper()
	select {
	case <-h.Finalized():
	case <-time.After(2 * time.Second):
		t.Fatal("handle not finalized")
	}
}

// events records listener calls in delivery order.
type events struct {
	mu   sync.Mutex
	list []string

	counts   []uint64
	receipt  *types.Receipt
	err      error
	errRec   *types.Receipt
	errCount uint64
}

func (ev *events) add(name string) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.list = append(ev.list, name)
}

func (ev *events) names() []string {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]string(nil), ev.list...)
}

func (ev *events) listenAll(h *handle.Handle) {
	ev.listenStream(h)
	h.OnReceipt(func(r *types.Receipt) {
		ev.add("receipt")
		ev.mu.Lock()
		ev.receipt = r
		ev.mu.Unlock()
	})
	ev.listenError(h)
}

func (ev *events) listenStream(h *handle.Handle) {
	h.OnTransactionHash(func(common.Hash) { ev.add("hash") })
	h.OnConfirmation(func(count uint64, _ *types.Receipt) {
		ev.add("confirmation")
		ev.mu.Lock()
		ev.counts = append(ev.counts, count)
		ev.mu.Unlock()
	})
}

func (ev *events) listenError(h *handle.Handle) {
	h.OnError(func(err error, r *types.Receipt, count uint64) {
		ev.add("error")
		ev.mu.Lock()
		ev.err, ev.errRec, ev.errCount = err, r, count
		ev.mu.Unlock()
	})
}

func TestSend_ScenarioA_AwaitResolves(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, true, 21_000)
	})
	tr.PushHead(11)
	tr.PushHead(12)

	h := newTestExecutor(tr, 2, nil, Config{}).Send(context.Background(), transferRequest(50_000))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := h.Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, rec.Status)
	require.Equal(t, txHash, rec.TxHash)
	require.Equal(t, uint64(10), rec.BlockNumber)
	require.Equal(t, uint64(21_000), rec.GasUsed)
}

func TestSend_ScenarioB_ReceiptListenerWins(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, true, 21_000)
	})
	tr.PushHead(11)
	tr.PushHead(12)

	ev := &events{}
	var receipts int
	h := newTestExecutor(tr, 2, nil, Config{}).Send(context.Background(), transferRequest(50_000), func(h *handle.Handle) {
		ev.listenStream(h)
		h.OnReceipt(func(r *types.Receipt) {
			receipts++
			ev.add("receipt")
			ev.receipt = r
		})
	})
	waitFinalized(t, h)

	require.Equal(t, 1, receipts)
	require.Equal(t, []string{"hash", "confirmation", "confirmation", "receipt"}, ev.names())
	require.Equal(t, []uint64{1, 2}, ev.counts)
	require.Equal(t, txHash, ev.receipt.TxHash)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	for _, e := range []handle.Event{handle.EventTransactionHash, handle.EventConfirmation, handle.EventReceipt, handle.EventError} {
		require.Zero(t, h.ListenerCount(e))
	}
}

func TestSend_ScenarioC_OutOfGasCancelsObservation(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, false, 21_000)
	})
	for _, n := range []uint64{11, 12, 13} {
		tr.PushHead(n)
	}

	ev := &events{}
	h := newTestExecutor(tr, 0, nil, Config{}).Send(context.Background(), transferRequest(21_000), ev.listenAll)
	waitFinalized(t, h)

	require.Equal(t, []string{"hash", "error"}, ev.names())
	require.ErrorIs(t, ev.err, types.ErrOutOfGas)

	var oog *types.OutOfGasError
	require.ErrorAs(t, ev.err, &oog)
	require.Equal(t, uint64(21_000), oog.Gas)
	require.NotNil(t, ev.errRec)
	require.False(t, ev.errRec.Status)
	require.Equal(t, uint64(1), ev.errCount)

	require.Eventually(t, func() bool {
		return tr.Unsubscribed() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, tr.Calls("eth_getTransactionReceipt"))
	require.Empty(t, ev.counts)
}

func TestSend_RevertedWhenGasBelowLimit(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, false, 15_000)
	})
	tr.PushHead(10)

	h := newTestExecutor(tr, 0, nil, Config{}).Send(context.Background(), transferRequest(21_000))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := h.Await(ctx)
	require.Nil(t, rec)
	require.ErrorIs(t, err, types.ErrReverted)
	require.NotErrorIs(t, err, types.ErrOutOfGas)
}

func TestSend_ScenarioD_SubmissionFails(t *testing.T) {
	tr := rpctest.New()
	refused := errors.New("dial tcp: connection refused")
	tr.HandleError("eth_sendTransaction", refused)

	ev := &events{}
	h := newTestExecutor(tr, 0, nil, Config{}).Send(context.Background(), transferRequest(21_000), ev.listenAll)
	waitFinalized(t, h)

	require.Equal(t, []string{"error"}, ev.names())
	require.ErrorIs(t, ev.err, refused)
	require.ErrorIs(t, ev.err, types.ErrTransport)
	require.Nil(t, ev.errRec)
	require.Zero(t, ev.errCount)
	require.Zero(t, tr.Subscribed())
}

func TestSend_SubmissionFailsWithoutListeners(t *testing.T) {
	tr := rpctest.New()
	refused := errors.New("nonce too low")
	tr.HandleError("eth_sendTransaction", refused)

	h := newTestExecutor(tr, 0, nil, Config{}).Send(context.Background(), transferRequest(21_000))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := h.Await(ctx)
	require.Nil(t, rec)
	require.ErrorIs(t, err, refused)

	var te *types.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "eth_sendTransaction", te.Op)
}

func TestSend_StreamErrorCarriesLastReceipt(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, true, 21_000)
	})
	tr.PushHead(11)

	dropped := errors.New("websocket: close 1006")
	ev := &events{}
	confirmed := make(chan struct{})
	h := newTestExecutor(tr, 0, nil, Config{}).Send(context.Background(), transferRequest(50_000), func(h *handle.Handle) {
		ev.listenError(h)
		h.OnConfirmation(func(uint64, *types.Receipt) { close(confirmed) })
	})

	<-confirmed
	tr.FailHeads(dropped)
	waitFinalized(t, h)

	require.ErrorIs(t, ev.err, dropped)
	require.ErrorIs(t, ev.err, types.ErrTransport)
	require.NotNil(t, ev.errRec)
	require.Equal(t, uint64(10), ev.errRec.BlockNumber)
	require.Equal(t, uint64(1), ev.errCount)
}

func TestSend_CallerContextBoundsObservation(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	h := newTestExecutor(tr, 0, nil, Config{}).Send(ctx, transferRequest(21_000), func(h *handle.Handle) {
		h.OnTransactionHash(func(common.Hash) { cancel() })
	})

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer awaitCancel()
	_, err := h.Await(awaitCtx)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, types.ErrTransport)
}

func TestSend_CancelLeavesTrackerPending(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any { return nil })
	tracker := &recordingTracker{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hashes := make(chan common.Hash, 1)
	exec := newTestExecutor(tr, 0, tracker, Config{})
	h := exec.Send(ctx, transferRequest(21_000), func(h *handle.Handle) {
		h.OnTransactionHash(func(hash common.Hash) { hashes <- hash })
	})

	select {
	case <-hashes:
	case <-time.After(2 * time.Second):
		t.Fatal("hash not delivered")
	}
	cancel()
	waitFinalized(t, h)

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer awaitCancel()
	_, err := h.Await(awaitCtx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"Created", "HashKnown"}, tracker.steps())
	require.Eventually(t, func() bool { return !exec.Observing(h.ID()) }, time.Second, 10*time.Millisecond)
}

func TestSend_InvalidRequest(t *testing.T) {
	tr := rpctest.New()
	tracker := &recordingTracker{}

	req := transferRequest(21_000)
	req.From = common.Address{}
	h := newTestExecutor(tr, 0, tracker, Config{}).Send(context.Background(), req)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.ErrorContains(t, err, "invalid transaction request")
	require.Zero(t, tr.Calls("eth_sendTransaction"))
	require.Empty(t, tracker.steps())
}

func TestSend_Prefill(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_gasPrice", (*hexutil.Big)(big.NewInt(1_000_000_000)))
	tr.HandleResult("eth_estimateGas", hexutil.Uint64(21_000))
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, false, 21_000)
	})
	tr.PushHead(10)

	req := types.TransactionRequest{From: sender, To: &recipient, Value: big.NewInt(1)}
	h := newTestExecutor(tr, 0, nil, Config{Prefill: true}).Send(context.Background(), req)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.ErrorIs(t, err, types.ErrOutOfGas)

	params := tr.Params("eth_sendTransaction")
	require.Len(t, params, 1)
	args := params[0][0].(rpc.TransactionArgs)
	require.Equal(t, hexutil.Uint64(21_000), *args.Gas)
	require.Equal(t, big.NewInt(1_000_000_000), args.GasPrice.ToInt())
}

func TestSend_PrefillFailure(t *testing.T) {
	tr := rpctest.New()
	reverted := errors.New("execution reverted")
	tr.HandleError("eth_estimateGas", reverted)
	tracker := &recordingTracker{}

	req := types.TransactionRequest{From: sender, To: &recipient, GasPrice: big.NewInt(1)}
	h := newTestExecutor(tr, 0, tracker, Config{Prefill: true}).Send(context.Background(), req)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.ErrorIs(t, err, reverted)

	var te *types.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "eth_estimateGas", te.Op)
	require.Zero(t, tr.Calls("eth_gasPrice"))
	require.Zero(t, tr.Calls("eth_sendTransaction"))
	require.Equal(t, []string{"Created", "Finalized:TRANSPORT_ERROR"}, tracker.steps())
}

func TestSend_ConfiguredGasPrice(t *testing.T) {
	tests := []struct {
		name    string
		prefill bool
	}{
		{name: "without prefill", prefill: false},
		{name: "with prefill", prefill: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := rpctest.New()
			tr.HandleResult("eth_estimateGas", hexutil.Uint64(21_000))
			tr.HandleResult("eth_sendTransaction", txHash)
			tr.HandleReceipts(func(int) map[string]any {
				return rpctest.Receipt(txHash, 10, true, 21_000)
			})
			tr.PushHead(11)

			price := big.NewInt(7_000_000_000)
			cfg := Config{Prefill: tt.prefill, GasPrice: price}
			req := types.TransactionRequest{From: sender, To: &recipient, Value: big.NewInt(1), Gas: 21_000}
			h := newTestExecutor(tr, 1, nil, cfg).Send(context.Background(), req)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := h.Await(ctx)
			require.NoError(t, err)

			require.Zero(t, tr.Calls("eth_gasPrice"))
			params := tr.Params("eth_sendTransaction")
			require.Len(t, params, 1)
			args := params[0][0].(rpc.TransactionArgs)
			require.Equal(t, price, args.GasPrice.ToInt())
			require.Equal(t, int64(7_000_000_000), cfg.GasPrice.Int64())
		})
	}
}

func TestSendRaw(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := gethtypes.NewEIP155Signer(big.NewInt(1))
	tx, err := gethtypes.SignTx(gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    3,
		To:       &recipient,
		Value:    big.NewInt(1),
		Gas:      50_000,
		GasPrice: big.NewInt(1_000_000_000),
	}), signer, key)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	tr := rpctest.New()
	tr.HandleResult("eth_sendRawTransaction", tx.Hash())
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(tx.Hash(), 10, false, 50_000)
	})
	tr.PushHead(10)
	tracker := &recordingTracker{}

	h := newTestExecutor(tr, 0, tracker, Config{}).SendRaw(context.Background(), raw)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = h.Await(ctx)
	require.ErrorIs(t, err, types.ErrOutOfGas)

	params := tr.Params("eth_sendRawTransaction")
	require.Equal(t, hexutil.Bytes(raw), params[0][0])

	created := tracker.created()
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), created.From)
	require.Equal(t, uint64(50_000), created.Gas)
	require.Equal(t, uint64(3), *created.Nonce)
}

func TestSendRaw_Malformed(t *testing.T) {
	tr := rpctest.New()
	h := newTestExecutor(tr, 0, nil, Config{}).SendRaw(context.Background(), []byte{0x01, 0x02})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := h.Await(ctx)
	require.Error(t, err)
	require.Zero(t, tr.Calls("eth_sendRawTransaction"))
}

func TestSend_TrackerLifecycle(t *testing.T) {
	tr := rpctest.New()
	tr.HandleResult("eth_sendTransaction", txHash)
	tr.HandleReceipts(func(int) map[string]any {
		return rpctest.Receipt(txHash, 10, true, 21_000)
	})
	tr.PushHead(11)
	tr.PushHead(12)

	failing := &recordingTracker{fail: errors.New("database is down")}
	tracker := &recordingTracker{}
	h := newTestExecutor(tr, 2, MultiTracker{failing, tracker}, Config{}).Send(context.Background(), transferRequest(50_000))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := h.Await(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)

	require.Equal(t, []string{"Created", "HashKnown", "Confirmed", "Confirmed", "Finalized:SUCCESS"}, tracker.steps())
	require.Equal(t, h.ID(), tracker.id)
}

type recordingTracker struct {
	mu   sync.Mutex
	id   uuid.UUID
	list []string
	req  types.TransactionRequest
	fail error
}

func (r *recordingTracker) record(id uuid.UUID, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
	r.list = append(r.list, step)
	return r.fail
}

func (r *recordingTracker) steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.list...)
}

func (r *recordingTracker) created() types.TransactionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.req
}

func (r *recordingTracker) Created(_ context.Context, id uuid.UUID, req types.TransactionRequest) error {
	r.mu.Lock()
	r.req = req
	r.mu.Unlock()
	return r.record(id, "Created")
}

func (r *recordingTracker) HashKnown(_ context.Context, id uuid.UUID, _ common.Hash) error {
	return r.record(id, "HashKnown")
}

func (r *recordingTracker) Confirmed(_ context.Context, id uuid.UUID, _ uint64) error {
	return r.record(id, "Confirmed")
}

func (r *recordingTracker) Finalized(_ context.Context, id uuid.UUID, res Result) error {
	return r.record(id, "Finalized:"+string(res.Status))
}
