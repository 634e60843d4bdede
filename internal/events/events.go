package events

import (
	"context"
	"sync"
	"time"
)

const (
	TypeSubmitted       = "complaint.submitted"
	TypeAssigned        = "complaint.assigned"
	TypeReassigned      = "complaint.reassigned"
	TypeStatusChanged   = "complaint.status_changed"
	TypeCategoryChanged = "complaint.category_changed"
)

type Event struct {
	Type            string    `json:"type"`
	ComplaintID     string    `json:"complaint_id"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	CustomerID      int64     `json:"customer_id,omitempty"`
	EmployeeID      *int64    `json:"employee_id,omitempty"`
	PreviousID      *int64    `json:"previous_employee_id,omitempty"`
	Status          string    `json:"status,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher delivers lifecycle events after the change has been committed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Types() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
