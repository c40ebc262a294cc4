package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidParams = errors.New("invalid number of parameters")

// Method describes one remote call: its name, its parameter count and the
// formatting and transformation steps that run around the network call.
type Method[T any] struct {
	Name   string
	Arity  int
	Params []any

	// Before formats params into their wire encoding. Nil sends params as is.
	Before func(params []any) ([]any, error)
	// After transforms the raw response. Nil decodes the JSON into T.
	After func(raw json.RawMessage) (T, error)
}

// Execute formats the params, performs exactly one transport call and
// transforms the response. Transport errors are returned wrapped, never retried.
func Execute[T any](ctx context.Context, t Transport, m Method[T]) (T, error) {
	var zero T

	if len(m.Params) != m.Arity {
		return zero, fmt.Errorf("%w for %s: got %d, expected %d", ErrInvalidParams, m.Name, len(m.Params), m.Arity)
	}

	params := make([]any, len(m.Params))
	copy(params, m.Params)
	if m.Before != nil {
		formatted, err := m.Before(params)
		if err != nil {
			return zero, fmt.Errorf("%s: format params: %w", m.Name, err)
		}
		params = formatted
	}

	raw, err := t.Send(ctx, m.Name, params...)
	if err != nil {
		return zero, fmt.Errorf("t.Send(%s): %w", m.Name, err)
	}

	after := m.After
	if after == nil {
		after = decodeJSON[T]
	}
	res, err := after(raw)
	if err != nil {
		return zero, fmt.Errorf("%s: transform response: %w", m.Name, err)
	}
	return res, nil
}
