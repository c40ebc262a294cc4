package rpc

import (
	"context"
	"encoding/json"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = time.Second
	headsBuffer         = 16
)

// Transport is a JSON-RPC capability: request/response plus a new-heads stream.
type Transport interface {
	Send(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	SubscribeNewHeads(ctx context.Context) (HeadSubscription, error)
}

// HeadSubscription delivers block headers until Unsubscribe is called or Err fires.
type HeadSubscription interface {
	Heads() <-chan *gethtypes.Header
	Err() <-chan error
	Unsubscribe()
}
