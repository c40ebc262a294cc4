package handle

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vultisig/txobserver/types"
)

// Emitter drives a Handle. Listeners run on the calling goroutine, outside
// the handle lock, so they may register or remove listeners themselves.
type Emitter struct {
	h *Handle
}

// TransactionHash reports false when the handle is already settled.
func (e *Emitter) TransactionHash(hash common.Hash) bool {
	h := e.h
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return false
	}
	fns := snapshot(h.hashes)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(hash)
	}
	return true
}

func (e *Emitter) Confirmation(count uint64, receipt *types.Receipt) bool {
	h := e.h
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return false
	}
	fns := snapshot(h.confirmations)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(count, receipt)
	}
	return true
}

// Resolve settles the handle with a successful receipt.
// Only the first Resolve or Reject has any effect.
func (e *Emitter) Resolve(receipt *types.Receipt) bool {
	h := e.h
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return false
	}
	h.settled = true
	fns := snapshot(h.receipts)
	if len(fns) == 0 {
		h.receipt = receipt
		close(h.done)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(receipt)
	}
	h.finalize()
	return true
}

// Reject settles the handle with a terminal error. Error listeners get the
// full context, the future gets err alone.
func (e *Emitter) Reject(err error, receipt *types.Receipt, confirmations uint64) bool {
	h := e.h
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return false
	}
	h.settled = true
	fns := snapshot(h.errs)
	if len(fns) == 0 {
		h.err = err
		close(h.done)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(err, receipt, confirmations)
	}
	h.finalize()
	return true
}
