package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/vultisig/txobserver/internal/journal"
	"github.com/vultisig/txobserver/internal/status"
	"github.com/vultisig/txobserver/rpc"
	"github.com/vultisig/txobserver/types"
)

type SubmitResponse struct {
	ID uuid.UUID `json:"id"`
}

// TransactionView is the query representation, built from either the live
// snapshot or the journal row.
type TransactionView struct {
	ID            uuid.UUID      `json:"id"`
	TxHash        *string        `json:"tx_hash,omitempty"`
	Status        types.TxStatus `json:"status"`
	Confirmations uint64         `json:"confirmations"`
	BlockNumber   *uint64        `json:"block_number,omitempty"`
	Error         string         `json:"error,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Source        string         `json:"source"`
}

func (s *Server) SubmitTransaction(c echo.Context) error {
	var args rpc.TransactionArgs
	err := c.Bind(&args)
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(MsgInvalidRequest, err.Error()))
	}

	req := args.Request()
	err = req.Validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithDetails(MsgInvalidRequest, err.Error()))
	}

	if s.baseCtx.Err() != nil {
		return c.JSON(http.StatusServiceUnavailable, NewErrorResponseWithMessage(MsgShuttingDown))
	}

	h := s.submitter.Send(s.baseCtx, req)
	s.logger.WithFields(req.Fields()).WithField("id", h.ID().String()).Info("transaction accepted")

	return c.JSON(http.StatusAccepted, NewSuccessResponse(http.StatusAccepted, SubmitResponse{ID: h.ID()}))
}

func (s *Server) GetTransaction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponseWithMessage(MsgInvalidTxID))
	}
	ctx := c.Request().Context()

	if s.status != nil {
		snap, err := s.status.Get(ctx, id)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, viewFromSnapshot(snap)))
		case !errors.Is(err, status.ErrNotFound):
			s.logger.WithError(err).WithField("id", id.String()).Warn("failed to read status snapshot")
		}
	}

	if s.journal != nil {
		tx, err := s.journal.GetTxByID(ctx, id)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, viewFromJournal(tx)))
		case !errors.Is(err, journal.ErrNoTx):
			s.logger.WithError(err).WithField("id", id.String()).Error("failed to read journal")
			return c.JSON(http.StatusInternalServerError, NewErrorResponseWithMessage(MsgInternalError))
		}
	}

	return c.JSON(http.StatusNotFound, NewErrorResponseWithMessage(MsgTxNotFound))
}

func viewFromSnapshot(snap status.Snapshot) TransactionView {
	view := TransactionView{
		ID:            snap.ID,
		Status:        snap.Status,
		Confirmations: snap.Confirmations,
		BlockNumber:   snap.BlockNumber,
		Error:         snap.Error,
		UpdatedAt:     snap.UpdatedAt,
		Source:        "live",
	}
	if snap.TxHash != nil {
		view.TxHash = hashString(*snap.TxHash)
	}
	return view
}

func viewFromJournal(tx journal.Tx) TransactionView {
	view := TransactionView{
		ID:            tx.ID,
		TxHash:        tx.TxHash,
		Status:        tx.Status,
		Confirmations: tx.Confirmations,
		BlockNumber:   tx.BlockNumber,
		UpdatedAt:     tx.UpdatedAt,
		Source:        "journal",
	}
	if tx.ErrorMessage != nil {
		view.Error = *tx.ErrorMessage
	}
	return view
}

func hashString(hash common.Hash) *string {
	s := hash.Hex()
	return &s
}
