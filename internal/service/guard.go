package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/events"
	"github.com/bankline/complaints/internal/lock"
	"github.com/bankline/complaints/internal/models"
)

// guard is the write path shared by Lifecycle and Assigner: lock the
// complaint, run fn in one transaction, publish after commit.
type guard struct {
	store  db.Database
	locker lock.Locker
	pub    events.Publisher
	now    func() time.Time
	logger zerolog.Logger
}

func (g guard) clock() time.Time {
	if g.now != nil {
		return g.now().UTC()
	}
	return time.Now().UTC()
}

func (g guard) mutate(ctx context.Context, op, complaintID string, fn func(r db.Repository) error) error {
	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, lock.ComplaintKey(complaintID))
		if err != nil {
			return storeError(op, err)
		}
		defer unlock()
	}
	return storeError(op, g.store.WithTx(ctx, fn))
}

func (g guard) publish(ctx context.Context, e events.Event) {
	if g.pub == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = g.clock()
	}
	if err := g.pub.Publish(ctx, e); err != nil {
		g.logger.Warn().Err(err).Str("event", e.Type).Str("complaint_id", e.ComplaintID).Msg("event publish failed")
	}
}

func complaintEvent(eventType string, c models.Complaint) events.Event {
	e := events.Event{Type: eventType, ComplaintID: c.ID, CustomerID: c.CustomerID}
	if s := c.Submission; s != nil {
		e.ReferenceNumber = s.ReferenceNumber
		e.Status = string(s.Status)
		e.EmployeeID = s.AssignedTo
	}
	return e
}
