package executor

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vultisig/txobserver/types"
)

// Tracker records the lifecycle of a submission outside the handle.
// Errors are logged by the executor and never change the outcome.
type Tracker interface {
	Created(ctx context.Context, id uuid.UUID, req types.TransactionRequest) error
	HashKnown(ctx context.Context, id uuid.UUID, hash common.Hash) error
	Confirmed(ctx context.Context, id uuid.UUID, confirmations uint64) error
	Finalized(ctx context.Context, id uuid.UUID, res Result) error
}

// Result is the terminal outcome handed to trackers.
type Result struct {
	Status        types.TxStatus
	Receipt       *types.Receipt
	Confirmations uint64
	Err           error
}

type MultiTracker []Tracker

func (m MultiTracker) Created(ctx context.Context, id uuid.UUID, req types.TransactionRequest) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Created(ctx, id, req))
	}
	return errors.Join(errs...)
}

func (m MultiTracker) HashKnown(ctx context.Context, id uuid.UUID, hash common.Hash) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.HashKnown(ctx, id, hash))
	}
	return errors.Join(errs...)
}

func (m MultiTracker) Confirmed(ctx context.Context, id uuid.UUID, confirmations uint64) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Confirmed(ctx, id, confirmations))
	}
	return errors.Join(errs...)
}

func (m MultiTracker) Finalized(ctx context.Context, id uuid.UUID, res Result) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Finalized(ctx, id, res))
	}
	return errors.Join(errs...)
}

type NilTracker struct{}

func (NilTracker) Created(context.Context, uuid.UUID, types.TransactionRequest) error { return nil }
func (NilTracker) HashKnown(context.Context, uuid.UUID, common.Hash) error             { return nil }
func (NilTracker) Confirmed(context.Context, uuid.UUID, uint64) error                  { return nil }
func (NilTracker) Finalized(context.Context, uuid.UUID, Result) error                  { return nil }
