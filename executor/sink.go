package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txobserver/handle"
	"github.com/vultisig/txobserver/observer"
	"github.com/vultisig/txobserver/types"
)

// sink turns the confirmation stream of one submission into handle events.
// All methods run on the observation goroutine.
type sink struct {
	e      *Executor
	logger *logrus.Entry
	id     uuid.UUID
	gas    uint64
	em     *handle.Emitter
	start  time.Time

	sub   *observer.Subscription
	ready chan struct{}

	receipt       *types.Receipt
	confirmations uint64
}

func (s *sink) OnConfirmation(c types.Confirmation) {
	rec := types.NewReceipt(c.Receipt)
	s.receipt, s.confirmations = rec, c.Count

	if !rec.Status {
		s.cancel()
		s.e.finalize(s.logger, s.id, s.em, s.start, Classify(rec, s.gas), rec, c.Count)
		return
	}

	s.e.metrics.RecordConfirmation()
	s.e.track(s.logger, "Confirmed", func(ctx context.Context) error {
		return s.e.tracker.Confirmed(ctx, s.id, c.Count)
	})
	s.em.Confirmation(c.Count, rec)
}

func (s *sink) OnError(err error) {
	s.logger.WithError(err).Warn("observation failed")
	s.e.finalize(s.logger, s.id, s.em, s.start, err, s.receipt, s.confirmations)
}

func (s *sink) OnComplete() {
	s.e.finalize(s.logger, s.id, s.em, s.start, nil, s.receipt, s.confirmations)
}

func (s *sink) cancel() {
	<-s.ready
	s.sub.Cancel()
}
