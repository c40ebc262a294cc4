package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/internal/conv"
	"github.com/vultisig/txobserver/types"
)

type Repo interface {
	executor.Tracker

	GetTxByID(ctx context.Context, id uuid.UUID) (Tx, error)
	GetStaleTxs(ctx context.Context, before time.Time) <-chan RowsStream[Tx]
	SetOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error
	SetLost(ctx context.Context, id uuid.UUID) error
}

var ErrNoTx = errors.New("transaction not found")

type Tx struct {
	ID            uuid.UUID      `json:"id"`
	TxHash        *string        `json:"tx_hash"`
	FromAddress   string         `json:"from_address"`
	ToAddress     *string        `json:"to_address"`
	Gas           uint64         `json:"gas"`
	Nonce         *uint64        `json:"nonce"`
	Status        types.TxStatus `json:"status"`
	Confirmations uint64         `json:"confirmations"`
	BlockNumber   *uint64        `json:"block_number"`
	ErrorMessage  *string        `json:"error_message"`
	BroadcastedAt *time.Time     `json:"broadcasted_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (t *Tx) Fields() logrus.Fields {
	return logrus.Fields{
		"id":             t.ID.String(),
		"tx_hash":        conv.FromPtr(t.TxHash),
		"from_address":   t.FromAddress,
		"to_address":     conv.FromPtr(t.ToAddress),
		"gas":            t.Gas,
		"status":         t.Status,
		"confirmations":  t.Confirmations,
		"broadcasted_at": conv.FromPtr(t.BroadcastedAt).String(),
		"created_at":     t.CreatedAt,
		"updated_at":     t.UpdatedAt,
	}
}

// Outcome is a terminal state written by the reconcile worker.
type Outcome struct {
	Status        types.TxStatus
	Confirmations uint64
	BlockNumber   *uint64
	ErrorMessage  *string
}
