// Package rpctest provides an in-memory rpc.Transport for tests.
package rpctest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/vultisig/txobserver/rpc"
)

type HandlerFunc func(params []any) (json.RawMessage, error)

type Transport struct {
	mu           sync.Mutex
	handlers     map[string]HandlerFunc
	calls        map[string]int
	params       map[string][][]any
	subscribeErr error
	subscribed   int
	unsubscribed int

	heads chan *gethtypes.Header
	errs  chan error
}

func New() *Transport {
	return &Transport{
		handlers: make(map[string]HandlerFunc),
		calls:    make(map[string]int),
		params:   make(map[string][][]any),
		heads:    make(chan *gethtypes.Header, 64),
		errs:     make(chan error, 1),
	}
}

func (t *Transport) Handle(method string, fn HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[method] = fn
}

// HandleResult answers method with the JSON encoding of v.
func (t *Transport) HandleResult(method string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("json.Marshal: %v", err))
	}
	t.Handle(method, func([]any) (json.RawMessage, error) {
		return raw, nil
	})
}

func (t *Transport) HandleError(method string, err error) {
	t.Handle(method, func([]any) (json.RawMessage, error) {
		return nil, err
	})
}

func (t *Transport) Send(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	fn, ok := t.handlers[method]
	t.calls[method]++
	t.params[method] = append(t.params[method], params)
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("the method %s does not exist/is not available", method)
	}
	return fn(params)
}

func (t *Transport) SubscribeNewHeads(ctx context.Context) (rpc.HeadSubscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribeErr != nil {
		return nil, t.subscribeErr
	}
	t.subscribed++
	return &subscription{t: t}, nil
}

func (t *Transport) FailSubscribe(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribeErr = err
}

// PushHead queues a new head; heads pushed before a subscription exists are buffered.
func (t *Transport) PushHead(number uint64) {
	t.heads <- &gethtypes.Header{Number: new(big.Int).SetUint64(number)}
}

func (t *Transport) FailHeads(err error) {
	t.errs <- err
}

func (t *Transport) Calls(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[method]
}

func (t *Transport) Params(method string) [][]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]any(nil), t.params[method]...)
}

func (t *Transport) Subscribed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribed
}

func (t *Transport) Unsubscribed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubscribed
}

type subscription struct {
	t    *Transport
	once sync.Once
}

func (s *subscription) Heads() <-chan *gethtypes.Header {
	return s.t.heads
}

func (s *subscription) Err() <-chan error {
	return s.t.errs
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.t.mu.Lock()
		defer s.t.mu.Unlock()
		s.t.unsubscribed++
	})
}

// Receipt is the node JSON of a receipt mined in block for hash.
func Receipt(hash common.Hash, block uint64, status bool, gasUsed uint64) map[string]any {
	st := hexutil.Uint64(gethtypes.ReceiptStatusFailed)
	if status {
		st = hexutil.Uint64(gethtypes.ReceiptStatusSuccessful)
	}
	return map[string]any{
		"transactionHash":   hash,
		"transactionIndex":  hexutil.Uint(0),
		"blockHash":         common.BigToHash(new(big.Int).SetUint64(block)),
		"blockNumber":       (*hexutil.Big)(new(big.Int).SetUint64(block)),
		"status":            st,
		"gasUsed":           hexutil.Uint64(gasUsed),
		"cumulativeGasUsed": hexutil.Uint64(gasUsed),
		"effectiveGasPrice": (*hexutil.Big)(big.NewInt(1_000_000_000)),
		"logsBloom":         "0x" + strings.Repeat("0", 2*gethtypes.BloomByteLength),
		"logs":              []any{},
		"type":              hexutil.Uint64(0),
	}
}

// HandleReceipts answers eth_getTransactionReceipt from fn; a nil map means pending.
func (t *Transport) HandleReceipts(fn func(call int) map[string]any) {
	var (
		mu   sync.Mutex
		call int
	)
	t.Handle("eth_getTransactionReceipt", func([]any) (json.RawMessage, error) {
		mu.Lock()
		call++
		n := call
		mu.Unlock()

		rec := fn(n)
		if rec == nil {
			return json.RawMessage("null"), nil
		}
		return json.Marshal(rec)
	})
}
