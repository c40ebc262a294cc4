package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/handle"
	"github.com/vultisig/txobserver/internal/health"
	"github.com/vultisig/txobserver/internal/journal"
	"github.com/vultisig/txobserver/internal/status"
	"github.com/vultisig/txobserver/types"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []types.TransactionRequest
}

func (f *fakeSubmitter) Send(_ context.Context, req types.TransactionRequest, _ ...executor.Setup) *handle.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	h, _ := handle.New()
	return h
}

func (f *fakeSubmitter) requests() []types.TransactionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TransactionRequest(nil), f.reqs...)
}

type fakeStatus map[uuid.UUID]status.Snapshot

func (f fakeStatus) Get(_ context.Context, id uuid.UUID) (status.Snapshot, error) {
	snap, ok := f[id]
	if !ok {
		return status.Snapshot{}, status.ErrNotFound
	}
	return snap, nil
}

type fakeJournal struct {
	txs map[uuid.UUID]journal.Tx
	err error
}

func (f fakeJournal) GetTxByID(_ context.Context, id uuid.UUID) (journal.Tx, error) {
	if f.err != nil {
		return journal.Tx{}, f.err
	}
	tx, ok := f.txs[id]
	if !ok {
		return journal.Tx{}, journal.ErrNoTx
	}
	return tx, nil
}

func newTestServer(sub Submitter, st StatusReader, jr JournalReader) *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewServer(Config{Port: 8080}, logger, sub, st, jr, nil, nil)
}

func newRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(s, newRequest(method, target, body))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeSubmitter{}, nil, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	logger := logrus.New()
	checker := health.New(logger)
	checker.Add("journal", func(context.Context) error { return nil })
	s := NewServer(Config{}, logger, &fakeSubmitter{}, nil, nil, checker, nil)

	rec := do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	checker.Add("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = do(t, s, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp APIResponse[map[string]string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "connection refused", resp.Data["redis"])
	assert.Equal(t, "ok", resp.Data["journal"])
}

func TestSubmitTransaction(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestServer(sub, nil, nil)

	body := `{
		"from": "0x1000000000000000000000000000000000000001",
		"to": "0x2000000000000000000000000000000000000002",
		"value": "0xde0b6b3a7640000",
		"gas": "0x5208"
	}`
	rec := do(t, s, http.MethodPost, "/v1/transactions", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp APIResponse[SubmitResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.Data.ID)

	reqs := sub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, common.HexToAddress("0x1000000000000000000000000000000000000001"), reqs[0].From)
	assert.Equal(t, uint64(21000), reqs[0].Gas)
	assert.Equal(t, "1000000000000000000", reqs[0].Value.String())
}

func TestSubmitTransaction_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "malformed_json",
			body: `{"from":`,
		},
		{
			name: "no_recipient_no_payload",
			body: `{"from": "0x1000000000000000000000000000000000000001"}`,
		},
		{
			name: "missing_sender",
			body: `{"to": "0x2000000000000000000000000000000000000002"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			s := newTestServer(sub, nil, nil)

			rec := do(t, s, http.MethodPost, "/v1/transactions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Empty(t, sub.requests())
		})
	}
}

func TestSubmitTransaction_ShuttingDown(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestServer(sub, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.baseCtx = ctx

	body := `{"from": "0x1000000000000000000000000000000000000001", "data": "0x6000"}`
	rec := do(t, s, http.MethodPost, "/v1/transactions", body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Empty(t, sub.requests())
}

func TestGetTransaction(t *testing.T) {
	liveID := uuid.New()
	journalID := uuid.New()
	hash := common.HexToHash("0xabc")
	block := uint64(100)
	reason := "transaction has been reverted by the EVM"
	journalHash := "0xdef"

	st := fakeStatus{
		liveID: {
			ID:            liveID,
			TxHash:        &hash,
			Status:        types.TxPending,
			Confirmations: 3,
		},
	}
	jr := fakeJournal{txs: map[uuid.UUID]journal.Tx{
		journalID: {
			ID:            journalID,
			TxHash:        &journalHash,
			Status:        types.TxReverted,
			Confirmations: 24,
			BlockNumber:   &block,
			ErrorMessage:  &reason,
		},
	}}
	s := newTestServer(&fakeSubmitter{}, st, jr)

	t.Run("live_snapshot", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/transactions/"+liveID.String(), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp APIResponse[TransactionView]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "live", resp.Data.Source)
		assert.Equal(t, types.TxPending, resp.Data.Status)
		assert.Equal(t, uint64(3), resp.Data.Confirmations)
		assert.Equal(t, hash.Hex(), *resp.Data.TxHash)
	})

	t.Run("journal_fallback", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/transactions/"+journalID.String(), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp APIResponse[TransactionView]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "journal", resp.Data.Source)
		assert.Equal(t, types.TxReverted, resp.Data.Status)
		assert.Equal(t, reason, resp.Data.Error)
		assert.Equal(t, block, *resp.Data.BlockNumber)
	})

	t.Run("not_found", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/transactions/"+uuid.NewString(), "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid_id", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/transactions/not-a-uuid", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTransaction_JournalError(t *testing.T) {
	s := newTestServer(&fakeSubmitter{}, fakeStatus{}, fakeJournal{err: errors.New("connection refused")})

	rec := do(t, s, http.MethodGet, "/v1/transactions/"+uuid.NewString(), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetTransaction_NoStores(t *testing.T) {
	s := newTestServer(&fakeSubmitter{}, nil, nil)

	rec := do(t, s, http.MethodGet, "/v1/transactions/"+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
