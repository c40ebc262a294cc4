// Package handle implements the result of one submitted transaction: a value
// that can be awaited once or listened to as a stream of events.
//
// A Handle settles exactly once. At that moment a single branch decides how the
// terminal outcome is delivered: when a listener is registered for the terminal
// event (receipt on success, error on failure) every such listener is called
// and then all listeners are removed; otherwise the future behind Await is
// settled. Await never returns an outcome that was delivered to listeners.
package handle

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vultisig/txobserver/types"
)

type Event string

const (
	EventTransactionHash Event = "transactionHash"
	EventConfirmation    Event = "confirmation"
	EventReceipt         Event = "receipt"
	EventError           Event = "error"
)

type (
	HashFunc         func(hash common.Hash)
	ConfirmationFunc func(count uint64, receipt *types.Receipt)
	ReceiptFunc      func(receipt *types.Receipt)
	// ErrorFunc gets the last known receipt (nil when none) and confirmation count.
	ErrorFunc func(err error, receipt *types.Receipt, confirmations uint64)
)

type entry[F any] struct {
	id uint64
	fn F
}

type Handle struct {
	id uuid.UUID

	mu            sync.Mutex
	settled       bool
	nextID        uint64
	hashes        []entry[HashFunc]
	confirmations []entry[ConfirmationFunc]
	receipts      []entry[ReceiptFunc]
	errs          []entry[ErrorFunc]

	// future
	done    chan struct{}
	receipt *types.Receipt
	err     error

	finalized chan struct{}
}

// New returns a handle and the Emitter that is the only way to drive it.
func New() (*Handle, *Emitter) {
	h := &Handle{
		id:        uuid.New(),
		done:      make(chan struct{}),
		finalized: make(chan struct{}),
	}
	return h, &Emitter{h: h}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) OnTransactionHash(fn HashFunc) (remove func()) {
	return register(h, &h.hashes, fn)
}

func (h *Handle) OnConfirmation(fn ConfirmationFunc) (remove func()) {
	return register(h, &h.confirmations, fn)
}

func (h *Handle) OnReceipt(fn ReceiptFunc) (remove func()) {
	return register(h, &h.receipts, fn)
}

func (h *Handle) OnError(fn ErrorFunc) (remove func()) {
	return register(h, &h.errs, fn)
}

// Await blocks until the future settles or ctx ends. If the outcome went to
// receipt or error listeners the future never settles and Await returns ctx.Err().
func (h *Handle) Await(ctx context.Context) (*types.Receipt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.receipt, h.err
	}
}

// Finalized is closed once the terminal outcome has been delivered, in either mode.
func (h *Handle) Finalized() <-chan struct{} {
	return h.finalized
}

func (h *Handle) Settled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settled
}

func (h *Handle) ListenerCount(e Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e {
	case EventTransactionHash:
		return len(h.hashes)
	case EventConfirmation:
		return len(h.confirmations)
	case EventReceipt:
		return len(h.receipts)
	case EventError:
		return len(h.errs)
	default:
		return 0
	}
}

func register[F any](h *Handle, list *[]entry[F], fn F) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.settled {
		return func() {}
	}
	h.nextID++
	id := h.nextID
	*list = append(*list, entry[F]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, e := range *list {
				if e.id == id {
					*list = append((*list)[:i:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

func snapshot[F any](list []entry[F]) []F {
	out := make([]F, 0, len(list))
	for _, e := range list {
		out = append(out, e.fn)
	}
	return out
}

// finalize removes every listener once the terminal event has been delivered.
func (h *Handle) finalize() {
	h.mu.Lock()
	h.hashes = nil
	h.confirmations = nil
	h.receipts = nil
	h.errs = nil
	h.mu.Unlock()

	close(h.finalized)
}
