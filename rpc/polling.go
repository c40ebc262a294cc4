package rpc

import (
	"context"
	"math/big"
	"sync"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// PollingHeads emulates a new-heads subscription by polling eth_blockNumber.
// Every height between two polls is emitted, so no block is skipped.
type PollingHeads struct {
	heads  chan *gethtypes.Header
	errs   chan error
	cancel context.CancelFunc
	once   sync.Once
}

func NewPollingHeads(c context.Context, t Transport, interval time.Duration) *PollingHeads {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(c)
	p := &PollingHeads{
		heads:  make(chan *gethtypes.Header, headsBuffer),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	go p.loop(ctx, t, interval)
	return p
}

func (p *PollingHeads) Heads() <-chan *gethtypes.Header {
	return p.heads
}

func (p *PollingHeads) Err() <-chan error {
	return p.errs
}

func (p *PollingHeads) Unsubscribe() {
	p.once.Do(p.cancel)
}

func (p *PollingHeads) loop(ctx context.Context, t Transport, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last uint64
		seen bool
	)
	for {
		number, err := Execute(ctx, t, BlockNumber())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.errs <- err
			return
		}

		if !seen || number > last {
			start := number
			if seen {
				start = last + 1
			}
			for n := start; n <= number; n++ {
				select {
				case <-ctx.Done():
					return
				case p.heads <- &gethtypes.Header{Number: new(big.Int).SetUint64(n)}:
				}
			}
			last, seen = number, true
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
