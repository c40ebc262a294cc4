package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Client is a Transport backed by a go-ethereum JSON-RPC connection.
// Over HTTP, where notifications are unsupported, new heads are polled.
type Client struct {
	logger       *logrus.Entry
	rpc          *gethrpc.Client
	pollInterval time.Duration
}

func Dial(c context.Context, logger *logrus.Logger, rpcURL string, pollInterval time.Duration) (*Client, error) {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	cl, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("rpc.DialContext: %w", err)
	}

	return NewClient(logger, cl, pollInterval), nil
}

func NewClient(logger *logrus.Logger, cl *gethrpc.Client, pollInterval time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Client{
		logger:       logger.WithField("pkg", "rpc.Client"),
		rpc:          cl,
		pollInterval: pollInterval,
	}
}

func (c *Client) Send(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, method, params...)
	if err != nil {
		return nil, fmt.Errorf("c.rpc.CallContext: %w", err)
	}
	return raw, nil
}

func (c *Client) SubscribeNewHeads(ctx context.Context) (HeadSubscription, error) {
	ch := make(chan *gethtypes.Header, headsBuffer)
	sub, err := c.rpc.EthSubscribe(ctx, ch, "newHeads")
	if err != nil {
		if errors.Is(err, gethrpc.ErrNotificationsUnsupported) {
			c.logger.WithField("interval", c.pollInterval.String()).Debug("notifications unsupported, polling new heads")
			return NewPollingHeads(ctx, c, c.pollInterval), nil
		}
		return nil, fmt.Errorf("c.rpc.EthSubscribe: %w", err)
	}
	return &clientHeads{
		sub:   sub,
		heads: ch,
	}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

type clientHeads struct {
	sub   *gethrpc.ClientSubscription
	heads chan *gethtypes.Header
}

func (h *clientHeads) Heads() <-chan *gethtypes.Header {
	return h.heads
}

func (h *clientHeads) Err() <-chan error {
	return h.sub.Err()
}

func (h *clientHeads) Unsubscribe() {
	h.sub.Unsubscribe()
}
