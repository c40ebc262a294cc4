// Package status keeps short lived snapshots of in-flight transactions in redis.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/types"
)

const keyPrefix = "txobserver:tx:"

var ErrNotFound = errors.New("status snapshot not found")

type Config struct {
	ConnURI  string        `mapstructure:"conn_uri" json:"conn_uri,omitempty" envconfig:"REDIS_URI"`
	Host     string        `mapstructure:"host" json:"host,omitempty" envconfig:"REDIS_HOST"`
	Port     string        `mapstructure:"port" json:"port,omitempty" envconfig:"REDIS_PORT"`
	User     string        `mapstructure:"user" json:"user,omitempty" envconfig:"REDIS_USER"`
	Password string        `mapstructure:"password" json:"password,omitempty" envconfig:"REDIS_PASSWORD"`
	DB       int           `mapstructure:"db" json:"db,omitempty" envconfig:"REDIS_DB"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl,omitempty" envconfig:"REDIS_TTL" default:"24h"`
}

func (c Config) Options() (*redis.Options, error) {
	if c.ConnURI != "" {
		opts, err := redis.ParseURL(c.ConnURI)
		if err != nil {
			return nil, fmt.Errorf("redis.ParseURL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     c.Host + ":" + c.Port,
		Username: c.User,
		Password: c.Password,
		DB:       c.DB,
	}, nil
}

// Snapshot is the latest known state of one submission.
type Snapshot struct {
	ID            uuid.UUID      `json:"id"`
	TxHash        *common.Hash   `json:"tx_hash,omitempty"`
	Status        types.TxStatus `json:"status"`
	Confirmations uint64         `json:"confirmations"`
	BlockNumber   *uint64        `json:"block_number,omitempty"`
	Error         string         `json:"error,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(c context.Context, cfg Config) (*Store, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("cfg.Options: %w", err)
	}

	client := redis.NewClient(opts)
	err = client.Ping(c).Err()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("client.Ping: %w", err)
	}
	return NewStoreFromClient(client, cfg.TTL), nil
}

func NewStoreFromClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func Key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	raw, err := s.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("s.client.Get: %w", err)
	}

	var snap Snapshot
	err = json.Unmarshal(raw, &snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return snap, nil
}

func (s *Store) put(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	err = s.client.Set(ctx, Key(snap.ID), raw, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("s.client.Set: %w", err)
	}
	return nil
}

// update applies fn to the stored snapshot, starting from an empty PENDING one
// when nothing is stored. Updates for one id come from a single goroutine.
func (s *Store) update(ctx context.Context, id uuid.UUID, fn func(snap *Snapshot)) error {
	snap, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		snap = Snapshot{ID: id, Status: types.TxPending}
	}
	fn(&snap)
	snap.UpdatedAt = time.Now().UTC()
	return s.put(ctx, snap)
}

func (s *Store) Created(ctx context.Context, id uuid.UUID, _ types.TransactionRequest) error {
	return s.put(ctx, Snapshot{
		ID:        id,
		Status:    types.TxPending,
		UpdatedAt: time.Now().UTC(),
	})
}

func (s *Store) HashKnown(ctx context.Context, id uuid.UUID, hash common.Hash) error {
	return s.update(ctx, id, withHash(hash))
}

func (s *Store) Confirmed(ctx context.Context, id uuid.UUID, confirmations uint64) error {
	return s.update(ctx, id, withConfirmations(confirmations))
}

func (s *Store) Finalized(ctx context.Context, id uuid.UUID, res executor.Result) error {
	return s.update(ctx, id, withResult(res))
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func withHash(hash common.Hash) func(*Snapshot) {
	return func(snap *Snapshot) {
		snap.TxHash = &hash
	}
}

func withConfirmations(confirmations uint64) func(*Snapshot) {
	return func(snap *Snapshot) {
		snap.Confirmations = max(snap.Confirmations, confirmations)
	}
}

func withResult(res executor.Result) func(*Snapshot) {
	return func(snap *Snapshot) {
		if snap.Status.Terminal() {
			return
		}
		snap.Status = res.Status
		snap.Confirmations = max(snap.Confirmations, res.Confirmations)
		if res.Receipt != nil {
			block := res.Receipt.BlockNumber
			snap.BlockNumber = &block
			if snap.TxHash == nil {
				hash := res.Receipt.TxHash
				snap.TxHash = &hash
			}
		}
		if res.Err != nil {
			snap.Error = res.Err.Error()
		}
	}
}

var _ executor.Tracker = (*Store)(nil)
