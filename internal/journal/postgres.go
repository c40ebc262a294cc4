package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/internal/conv"
	"github.com/vultisig/txobserver/types"
)

const defaultTimeout = 10 * time.Second

const txColumns = `id,
                   tx_hash,
                   from_address,
                   to_address,
                   gas,
                   nonce,
                   status,
                   confirmations,
                   block_number,
                   error_message,
                   broadcasted_at,
                   created_at,
                   updated_at`

type PostgresJournal struct {
	logger *logrus.Entry
	pool   *pgxpool.Pool
}

// NewPostgresJournal connects to dsn and applies the embedded migrations.
func NewPostgresJournal(c context.Context, logger *logrus.Logger, dsn string) (*PostgresJournal, error) {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}

	err = NewMigrationManager(logger, pool).Migrate()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresJournal{
		logger: logger.WithField("pkg", "journal.PostgresJournal"),
		pool:   pool,
	}, nil
}

func (p *PostgresJournal) Close() {
	p.pool.Close()
}

func (p *PostgresJournal) Ping(c context.Context) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *PostgresJournal) Created(c context.Context, id uuid.UUID, req types.TransactionRequest) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	var to *string
	if req.To != nil {
		to = conv.Ptr(req.To.Hex())
	}
	var nonce *int64
	if req.Nonce != nil {
		nonce = conv.Ptr(int64(*req.Nonce))
	}

	_, err := p.pool.Exec(ctx, `INSERT INTO tx_journal (
                        id,
                        from_address,
                        to_address,
                        gas,
                        nonce,
                        status
) VALUES (
          $1,
          $2,
          $3,
          $4,
          $5,
          $6::tx_journal_status
)`, id,
		req.From.Hex(),
		to,
		int64(req.Gas),
		nonce,
		types.TxPending)
	if err != nil {
		return fmt.Errorf("p.pool.Exec: %w", err)
	}
	return nil
}

func (p *PostgresJournal) HashKnown(c context.Context, id uuid.UUID, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	_, err := p.pool.Exec(
		ctx,
		`UPDATE tx_journal SET tx_hash = $1,
                                   broadcasted_at = now(),
                                   updated_at = now()
                               WHERE id = $2`,
		hash.Hex(),
		id,
	)
	if err != nil {
		return fmt.Errorf("p.pool.Exec: %w", err)
	}
	return nil
}

// Confirmed never lowers the stored count.
func (p *PostgresJournal) Confirmed(c context.Context, id uuid.UUID, confirmations uint64) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	_, err := p.pool.Exec(
		ctx,
		`UPDATE tx_journal SET confirmations = GREATEST(confirmations, $1),
                                   updated_at = now()
                               WHERE id = $2`,
		int64(confirmations),
		id,
	)
	if err != nil {
		return fmt.Errorf("p.pool.Exec: %w", err)
	}
	return nil
}

func (p *PostgresJournal) Finalized(c context.Context, id uuid.UUID, res executor.Result) error {
	outcome := Outcome{
		Status:        res.Status,
		Confirmations: res.Confirmations,
	}
	if res.Receipt != nil {
		outcome.BlockNumber = conv.Ptr(res.Receipt.BlockNumber)
	}
	if res.Err != nil {
		outcome.ErrorMessage = conv.Ptr(res.Err.Error())
	}
	return p.SetOutcome(c, id, outcome)
}

// SetOutcome moves a PENDING row to a terminal status. Rows already
// finalized are left untouched.
func (p *PostgresJournal) SetOutcome(c context.Context, id uuid.UUID, outcome Outcome) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	var block *int64
	if outcome.BlockNumber != nil {
		block = conv.Ptr(int64(*outcome.BlockNumber))
	}

	tag, err := p.pool.Exec(
		ctx,
		`UPDATE tx_journal SET status = $1::tx_journal_status,
                                   confirmations = GREATEST(confirmations, $2),
                                   block_number = $3,
                                   error_message = $4,
                                   updated_at = now()
                               WHERE id = $5 AND status = 'PENDING'`,
		outcome.Status,
		int64(outcome.Confirmations),
		block,
		outcome.ErrorMessage,
		id,
	)
	if err != nil {
		return fmt.Errorf("p.pool.Exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		p.logger.WithFields(logrus.Fields{
			"id":     id.String(),
			"status": outcome.Status,
		}).Debug("journal row missing or already final")
	}
	return nil
}

func (p *PostgresJournal) SetLost(c context.Context, id uuid.UUID) error {
	return p.SetOutcome(c, id, Outcome{
		Status:       types.TxLost,
		ErrorMessage: conv.Ptr("transaction not found on chain"),
	})
}

func (p *PostgresJournal) GetTxByID(c context.Context, id uuid.UUID) (Tx, error) {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT `+txColumns+` FROM tx_journal WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		return Tx{}, fmt.Errorf("p.pool.Query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		err = rows.Err()
		if err != nil {
			return Tx{}, fmt.Errorf("rows.Err: %w", err)
		}
		return Tx{}, ErrNoTx
	}

	tx, err := TxFromRow(rows)
	if err != nil {
		return Tx{}, fmt.Errorf("TxFromRow: %w", err)
	}
	return tx, nil
}

// GetStaleTxs streams PENDING rows not updated since before.
func (p *PostgresJournal) GetStaleTxs(ctx context.Context, before time.Time) <-chan RowsStream[Tx] {
	return GetRowsStream[Tx](
		ctx,
		p.pool,
		TxFromRow,
		`SELECT `+txColumns+` FROM tx_journal WHERE status = $1::tx_journal_status AND updated_at < $2 ORDER BY updated_at`,
		types.TxPending,
		before,
	)
}

func TxFromRow(rows pgx.Rows) (Tx, error) {
	var (
		tx            Tx
		gas           int64
		nonce         *int64
		confirmations int64
		block         *int64
	)
	err := rows.Scan(
		&tx.ID,
		&tx.TxHash,
		&tx.FromAddress,
		&tx.ToAddress,
		&gas,
		&nonce,
		&tx.Status,
		&confirmations,
		&block,
		&tx.ErrorMessage,
		&tx.BroadcastedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return Tx{}, fmt.Errorf("rows.Scan: %w", err)
	}

	tx.Gas = uint64(gas)
	tx.Confirmations = uint64(confirmations)
	if nonce != nil {
		tx.Nonce = conv.Ptr(uint64(*nonce))
	}
	if block != nil {
		tx.BlockNumber = conv.Ptr(uint64(*block))
	}
	return tx, nil
}

var _ Repo = (*PostgresJournal)(nil)

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoTx)
}
