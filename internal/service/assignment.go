package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/events"
	"github.com/bankline/complaints/internal/lock"
	"github.com/bankline/complaints/internal/models"
)

// LoadSource selects which load figure the balancer compares.
type LoadSource string

const (
	// LoadDerived counts active assignment rows, which cannot drift.
	LoadDerived LoadSource = "derived"
	// LoadCounter trusts the maintained current_load column.
	LoadCounter LoadSource = "counter"
)

func ParseLoadSource(value string) (LoadSource, bool) {
	switch LoadSource(strings.ToLower(strings.TrimSpace(value))) {
	case "", LoadDerived:
		return LoadDerived, true
	case LoadCounter:
		return LoadCounter, true
	}
	return "", false
}

func (s LoadSource) Of(e models.Employee) int {
	if s == LoadCounter {
		return e.CurrentLoad
	}
	return e.ActiveLoad
}

// FindLeastLoadedAvailable picks the available employee with the lowest
// load, breaking ties by lowest id. The input slice is not reordered.
func FindLeastLoadedAvailable(employees []models.Employee, source LoadSource) (models.Employee, bool) {
	eligible := make([]models.Employee, 0, len(employees))
	for _, e := range employees {
		if e.IsAvailable {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return models.Employee{}, false
	}
	sort.Slice(eligible, func(i, j int) bool {
		li, lj := source.Of(eligible[i]), source.Of(eligible[j])
		if li == lj {
			return eligible[i].ID < eligible[j].ID
		}
		return li < lj
	})
	return eligible[0], true
}

type Assigner struct {
	Store      db.Database
	Locker     lock.Locker
	Events     events.Publisher
	LoadSource LoadSource
	Now        func() time.Time
	Logger     zerolog.Logger
}

type AssignResult struct {
	Complaint  models.Complaint
	Assignment models.Assignment
	// Previous is the row that was moved to reassigned, if there was one.
	Previous *models.Assignment
	// Unchanged is set when the complaint already sat with the target.
	Unchanged bool
}

func (a *Assigner) guard() guard {
	return guard{store: a.Store, locker: a.Locker, pub: a.Events, now: a.Now, logger: a.Logger}
}

// AssignComplaint gives the complaint to employeeID, or to the least loaded
// available employee when employeeID is nil. An existing active assignment
// is handed over exactly as ReassignComplaint would.
func (a *Assigner) AssignComplaint(ctx context.Context, complaintID string, employeeID *int64, remarks *string) (AssignResult, error) {
	return a.assign(ctx, "AssignComplaint", complaintID, employeeID, remarks)
}

func (a *Assigner) ReassignComplaint(ctx context.Context, complaintID string, newEmployeeID int64, remarks *string) (AssignResult, error) {
	return a.assign(ctx, "ReassignComplaint", complaintID, &newEmployeeID, remarks)
}

func (a *Assigner) assign(ctx context.Context, op, complaintID string, employeeID *int64, remarks *string) (AssignResult, error) {
	g := a.guard()
	var res AssignResult
	err := g.mutate(ctx, op, complaintID, func(r db.Repository) error {
		res = AssignResult{}
		c, err := r.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		status, submitted := c.Status()
		if !submitted {
			return newError(KindInvalidTransition, op, "complaint %s is still a draft", complaintID)
		}
		if status.Terminal() {
			return newError(KindInvalidTransition, op, "complaint %s is %s", complaintID, status)
		}

		target, err := a.pickTarget(ctx, op, r, employeeID)
		if err != nil {
			return err
		}

		now := g.clock()
		active, err := r.FindActiveAssignment(ctx, complaintID)
		switch {
		case err == nil:
			if active.EmployeeID == target.ID {
				res = AssignResult{Complaint: c, Assignment: active, Unchanged: true}
				return nil
			}
			prev := active
			prev.Status = models.AssignmentReassigned
			prev.UnassignedAt = &now
			if err := r.UpdateAssignment(ctx, prev); err != nil {
				return err
			}
			if err := a.moveLoad(ctx, r, prev.EmployeeID, -1); err != nil {
				return err
			}
			res.Previous = &prev
		case errors.Is(err, db.ErrNotFound):
		default:
			return err
		}

		row := models.Assignment{
			ComplaintID: complaintID,
			EmployeeID:  target.ID,
			AssignedAt:  now,
			Status:      models.AssignmentActive,
			Remarks:     remarks,
		}
		if err := r.InsertAssignment(ctx, &row); err != nil {
			return err
		}
		if err := a.moveLoad(ctx, r, target.ID, 1); err != nil {
			return err
		}

		id := target.ID
		c.Submission.AssignedTo = &id
		if status == models.StatusOpen {
			c.Submission.Status = models.StatusAssigned
		}
		if err := r.UpdateComplaint(ctx, &c); err != nil {
			return err
		}
		res.Complaint = c
		res.Assignment = row
		return nil
	})
	if err != nil {
		return AssignResult{}, err
	}
	if res.Unchanged {
		return res, nil
	}

	e := complaintEvent(events.TypeAssigned, res.Complaint)
	if res.Previous != nil {
		e.Type = events.TypeReassigned
		prevID := res.Previous.EmployeeID
		e.PreviousID = &prevID
	}
	g.publish(ctx, e)
	a.Logger.Info().
		Str("complaint_id", complaintID).
		Int64("employee_id", res.Assignment.EmployeeID).
		Bool("reassigned", res.Previous != nil).
		Msg("complaint assigned")
	return res, nil
}

// moveLoad keeps current_load in step with an assignment change. The counter
// source applies the delta atomically; the derived source rewrites the
// column from active rows so it cannot drift.
func (a *Assigner) moveLoad(ctx context.Context, r db.Repository, employeeID int64, delta int) error {
	if a.LoadSource == LoadCounter {
		return r.AdjustLoad(ctx, employeeID, delta)
	}
	_, err := r.RecomputeLoad(ctx, employeeID)
	return err
}

func (a *Assigner) pickTarget(ctx context.Context, op string, r db.Repository, employeeID *int64) (models.Employee, error) {
	if employeeID != nil {
		e, err := r.GetEmployee(ctx, *employeeID)
		if errors.Is(err, db.ErrNotFound) {
			return models.Employee{}, newError(KindNotFound, op, "employee %d not found", *employeeID)
		}
		return e, err
	}
	available, err := r.ListAvailableEmployees(ctx)
	if err != nil {
		return models.Employee{}, err
	}
	e, ok := FindLeastLoadedAvailable(available, a.LoadSource)
	if !ok {
		return models.Employee{}, newError(KindNoAvailableEmployee, op, "no employee is available")
	}
	return e, nil
}

// releaseActive closes the complaint's active assignment and resets the
// employee's counter from the remaining active rows.
func releaseActive(ctx context.Context, r db.Repository, complaintID string, now time.Time) (*models.Assignment, error) {
	active, err := r.FindActiveAssignment(ctx, complaintID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	active.Status = models.AssignmentClosed
	active.UnassignedAt = &now
	if err := r.UpdateAssignment(ctx, active); err != nil {
		return nil, err
	}
	if _, err := r.RecomputeLoad(ctx, active.EmployeeID); err != nil {
		return nil, err
	}
	return &active, nil
}

// ReconcileLoads rewrites every employee's current_load from active
// assignment rows and returns the refreshed employees.
func (a *Assigner) ReconcileLoads(ctx context.Context) ([]models.Employee, error) {
	const op = "ReconcileLoads"
	var out []models.Employee
	err := a.Store.WithTx(ctx, func(r db.Repository) error {
		employees, err := r.ListEmployees(ctx)
		if err != nil {
			return err
		}
		drifted := 0
		for _, e := range employees {
			load, err := r.RecomputeLoad(ctx, e.ID)
			if err != nil {
				return err
			}
			if load != e.CurrentLoad {
				drifted++
				a.Logger.Warn().Int64("employee_id", e.ID).Int("was", e.CurrentLoad).Int("now", load).Msg("load counter drift corrected")
			}
		}
		if drifted > 0 {
			a.Logger.Info().Int("drifted", drifted).Msg("loads reconciled")
		}
		out, err = r.ListEmployees(ctx)
		return err
	})
	if err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}

func (a *Assigner) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	out, err := a.Store.ListEmployees(ctx)
	return out, storeError("ListEmployees", err)
}

func (a *Assigner) CreateEmployee(ctx context.Context, e models.Employee) (models.Employee, error) {
	const op = "CreateEmployee"
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return models.Employee{}, newError(KindValidation, op, "name is required")
	}
	if e.MaxLoad <= 0 {
		e.MaxLoad = 10
	}
	e.CurrentLoad = 0
	if err := a.Store.CreateEmployee(ctx, &e); err != nil {
		return models.Employee{}, storeError(op, err)
	}
	return e, nil
}

func (a *Assigner) ListAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error) {
	const op = "ListAssignments"
	if _, err := a.Store.GetComplaint(ctx, complaintID); err != nil {
		return nil, storeError(op, err)
	}
	out, err := a.Store.ListAssignments(ctx, complaintID)
	return out, storeError(op, err)
}
