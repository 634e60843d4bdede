package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bankline/complaints/internal/models"
)

func TestFindLeastLoadedAvailable(t *testing.T) {
	employees := []models.Employee{
		{ID: 3, IsAvailable: true, CurrentLoad: 1, ActiveLoad: 1},
		{ID: 1, IsAvailable: false, CurrentLoad: 0, ActiveLoad: 0},
		{ID: 2, IsAvailable: true, CurrentLoad: 4, ActiveLoad: 1},
	}
	got, ok := FindLeastLoadedAvailable(employees, LoadDerived)
	if !ok || got.ID != 2 {
		t.Fatalf("expected lowest id among equal derived loads, got %+v", got)
	}
	got, ok = FindLeastLoadedAvailable(employees, LoadCounter)
	if !ok || got.ID != 3 {
		t.Fatalf("expected smallest counter load, got %+v", got)
	}
	if employees[0].ID != 3 {
		t.Fatalf("input slice was reordered")
	}
}

func TestFindLeastLoadedAvailableDeterministic(t *testing.T) {
	employees := []models.Employee{
		{ID: 9, IsAvailable: true, CurrentLoad: 2},
		{ID: 4, IsAvailable: true, CurrentLoad: 2},
		{ID: 7, IsAvailable: true, CurrentLoad: 2},
	}
	for i := 0; i < 20; i++ {
		got, _ := FindLeastLoadedAvailable(employees, LoadCounter)
		if got.ID != 4 {
			t.Fatalf("run %d picked %d, expected 4", i, got.ID)
		}
	}
}

func TestFindLeastLoadedAvailableNone(t *testing.T) {
	if _, ok := FindLeastLoadedAvailable([]models.Employee{{ID: 1}}, LoadDerived); ok {
		t.Fatalf("expected no candidate")
	}
	if _, ok := FindLeastLoadedAvailable(nil, LoadDerived); ok {
		t.Fatalf("expected no candidate for empty set")
	}
}

func TestAssignPicksLeastLoaded(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.employee(t, "E1", true, 0)
	env.employee(t, "E2", true, 2)
	d1 := env.submitted(t, 42)

	res, err := env.assigner.AssignComplaint(env.ctx, d1.ID, nil, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got := res.Complaint.Submission.AssignedTo; got == nil || *got != e1.ID {
		t.Fatalf("expected assignee %d, got %v", e1.ID, got)
	}
	if res.Complaint.Submission.Status != models.StatusAssigned {
		t.Fatalf("expected assigned status, got %s", res.Complaint.Submission.Status)
	}
	if load := env.load(t, e1.ID); load != 1 {
		t.Fatalf("expected E1 load 1, got %d", load)
	}
	active, err := env.store.FindActiveAssignment(env.ctx, d1.ID)
	if err != nil || active.EmployeeID != e1.ID {
		t.Fatalf("expected active row for E1, got %+v (%v)", active, err)
	}
}

func TestReassignMovesLoad(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.employee(t, "E1", true, 0)
	e2 := env.employee(t, "E2", true, 2)
	d1 := env.submitted(t, 42)
	if _, err := env.assigner.AssignComplaint(env.ctx, d1.ID, nil, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	remarks := "specialist needed"
	res, err := env.assigner.ReassignComplaint(env.ctx, d1.ID, e2.ID, &remarks)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if env.load(t, e1.ID) != 0 || env.load(t, e2.ID) != 1 {
		t.Fatalf("unexpected loads E1=%d E2=%d", env.load(t, e1.ID), env.load(t, e2.ID))
	}
	if res.Previous == nil || res.Previous.Status != models.AssignmentReassigned || res.Previous.UnassignedAt == nil {
		t.Fatalf("expected previous row marked reassigned, got %+v", res.Previous)
	}

	rows, _ := env.store.ListAssignments(env.ctx, d1.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 assignment rows, got %d", len(rows))
	}
	if rows[0].Status != models.AssignmentReassigned || rows[1].Status != models.AssignmentActive || rows[1].EmployeeID != e2.ID {
		t.Fatalf("unexpected history %+v", rows)
	}
	if got := env.recorder.Types(); len(got) < 3 || got[len(got)-1] != "complaint.reassigned" {
		t.Fatalf("expected reassigned event last, got %v", got)
	}
}

func TestReassignWithoutActiveRowDegradesToAssign(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.employee(t, "E1", true, 0)
	d1 := env.submitted(t, 42)

	res, err := env.assigner.ReassignComplaint(env.ctx, d1.ID, e1.ID, nil)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.Previous != nil {
		t.Fatalf("expected no previous row")
	}
	if env.load(t, e1.ID) != 1 {
		t.Fatalf("expected load 1, got %d", env.load(t, e1.ID))
	}
}

func TestAssignTwiceKeepsOneActiveRow(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.employee(t, "E1", true, 0)
	e2 := env.employee(t, "E2", true, 0)
	d1 := env.submitted(t, 42)

	if _, err := env.assigner.AssignComplaint(env.ctx, d1.ID, &e1.ID, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.assigner.AssignComplaint(env.ctx, d1.ID, &e2.ID, nil); err != nil {
		t.Fatalf("second assign: %v", err)
	}
	res, err := env.assigner.AssignComplaint(env.ctx, d1.ID, &e2.ID, nil)
	if err != nil || !res.Unchanged {
		t.Fatalf("expected unchanged repeat assign, got %+v (%v)", res, err)
	}

	active := 0
	rows, _ := env.store.ListAssignments(env.ctx, d1.ID)
	for _, r := range rows {
		if r.Status == models.AssignmentActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected one active row, got %d", active)
	}
}

func TestAssignNoAvailableEmployee(t *testing.T) {
	env := newTestEnv(t)
	env.employee(t, "Away", false, 0)
	d2 := env.submitted(t, 7)

	_, err := env.assigner.AssignComplaint(env.ctx, d2.ID, nil, nil)
	if !errors.Is(err, ErrNoAvailableEmployee) {
		t.Fatalf("expected no available employee, got %v", err)
	}
	got, _ := env.lifecycle.Get(env.ctx, d2.ID)
	if got.Submission.Status != models.StatusOpen || got.Submission.AssignedTo != nil {
		t.Fatalf("complaint changed on failed assignment: %+v", got.Submission)
	}
}

func TestAssignRejectsDraftAndTerminal(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.employee(t, "E1", true, 0)
	draft, _ := env.lifecycle.CreateDraft(env.ctx, 42, "")
	if _, err := env.assigner.AssignComplaint(env.ctx, draft.ID, &e1.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for draft, got %v", err)
	}

	closed := env.submitted(t, 42)
	if _, err := env.lifecycle.UpdateStatus(env.ctx, closed.ID, models.StatusEscalated, nil); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if _, err := env.assigner.ReassignComplaint(env.ctx, closed.ID, e1.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for escalated, got %v", err)
	}
}

func TestAssignUnknownTargets(t *testing.T) {
	env := newTestEnv(t)
	d1 := env.submitted(t, 42)
	missing := int64(404)
	if _, err := env.assigner.AssignComplaint(env.ctx, d1.ID, &missing, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found employee, got %v", err)
	}
	if _, err := env.assigner.AssignComplaint(env.ctx, "nope", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found complaint, got %v", err)
	}
}

func TestLoadConservation(t *testing.T) {
	for _, source := range []LoadSource{LoadDerived, LoadCounter} {
		t.Run(string(source), func(t *testing.T) {
			env := newTestEnv(t)
			env.assigner.LoadSource = source
			var ids []int64
			for _, name := range []string{"A", "B", "C"} {
				ids = append(ids, env.employee(t, name, true, 0).ID)
			}
			var complaints []string
			for i := 0; i < 5; i++ {
				c := env.submitted(t, int64(100+i))
				complaints = append(complaints, c.ID)
				if _, err := env.assigner.AssignComplaint(env.ctx, c.ID, nil, nil); err != nil {
					t.Fatalf("assign %d: %v", i, err)
				}
			}
			moves := []struct {
				complaint int
				employee  int
			}{{0, 2}, {1, 2}, {0, 1}, {4, 0}, {3, 2}}
			for _, m := range moves {
				if _, err := env.assigner.ReassignComplaint(env.ctx, complaints[m.complaint], ids[m.employee], nil); err != nil {
					t.Fatalf("reassign: %v", err)
				}
			}

			sum := 0
			for _, id := range ids {
				sum += env.load(t, id)
			}
			active := 0
			for _, cid := range complaints {
				if _, err := env.store.FindActiveAssignment(env.ctx, cid); err == nil {
					active++
				}
			}
			if sum != active || active != len(complaints) {
				t.Fatalf("load sum %d, active rows %d, complaints %d", sum, active, len(complaints))
			}
		})
	}
}

func TestCloseReleasesLoad(t *testing.T) {
	env := newTestEnv(t)
	env.assigner.LoadSource = LoadCounter
	e1 := env.employee(t, "E1", true, 0)
	d1 := env.submitted(t, 42)
	if _, err := env.assigner.AssignComplaint(env.ctx, d1.ID, nil, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.lifecycle.UpdateStatus(env.ctx, d1.ID, models.StatusClosed, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	if env.load(t, e1.ID) != 0 {
		t.Fatalf("expected load released, got %d", env.load(t, e1.ID))
	}
	rows, _ := env.store.ListAssignments(env.ctx, d1.ID)
	if len(rows) != 1 || rows[0].Status != models.AssignmentClosed || rows[0].UnassignedAt == nil {
		t.Fatalf("expected closed assignment row, got %+v", rows)
	}
}

func TestReconcileLoadsFixesDrift(t *testing.T) {
	env := newTestEnv(t)
	e1 := env.employee(t, "E1", true, 5)
	d1 := env.submitted(t, 42)
	if _, err := env.assigner.AssignComplaint(env.ctx, d1.ID, &e1.ID, nil); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := env.store.AdjustLoad(env.ctx, e1.ID, 4); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	out, err := env.assigner.ReconcileLoads(env.ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(out) != 1 || out[0].CurrentLoad != 1 || out[0].ActiveLoad != 1 {
		t.Fatalf("unexpected reconciled employees %+v", out)
	}
}

func TestCreateEmployeeValidates(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.assigner.CreateEmployee(env.ctx, models.Employee{Name: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	e, err := env.assigner.CreateEmployee(env.ctx, models.Employee{Name: "Ravi", CurrentLoad: 9})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == 0 || e.CurrentLoad != 0 || e.MaxLoad != 10 {
		t.Fatalf("unexpected employee %+v", e)
	}
}

func TestListAssignmentsUnknownComplaint(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.assigner.ListAssignments(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentAutoAssignConservesLoad(t *testing.T) {
	for _, source := range []LoadSource{LoadDerived, LoadCounter} {
		t.Run(string(source), func(t *testing.T) {
			env := newTestEnv(t)
			env.assigner.LoadSource = source
			var ids []int64
			for _, name := range []string{"A", "B", "C"} {
				ids = append(ids, env.employee(t, name, true, 0).ID)
			}
			var complaints []string
			for i := 0; i < 12; i++ {
				complaints = append(complaints, env.submitted(t, int64(200+i)).ID)
			}

			var wg sync.WaitGroup
			for _, cid := range complaints {
				for range 2 {
					wg.Add(1)
					go func(cid string) {
						defer wg.Done()
						if _, err := env.assigner.AssignComplaint(env.ctx, cid, nil, nil); err != nil {
							t.Errorf("assign %s: %v", cid, err)
						}
					}(cid)
				}
			}
			wg.Wait()

			sum := 0
			for _, id := range ids {
				sum += env.load(t, id)
			}
			active := 0
			for _, cid := range complaints {
				rows, err := env.store.ListAssignments(env.ctx, cid)
				if err != nil {
					t.Fatalf("list assignments: %v", err)
				}
				n := 0
				for _, a := range rows {
					if a.Status == models.AssignmentActive {
						n++
					}
				}
				if n != 1 {
					t.Fatalf("complaint %s has %d active rows", cid, n)
				}
				active += n
			}
			if sum != active {
				t.Fatalf("load sum %d, active rows %d", sum, active)
			}
		})
	}
}
