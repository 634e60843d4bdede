package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bankline/complaints/internal/models"
)

// MemoryStore is an in-process Database. WithTx runs against a private copy
// of the state that replaces the shared one only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	Now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type memState struct {
	complaints       map[string]models.Complaint
	employees        map[int64]models.Employee
	assignments      map[int64]models.Assignment
	nextEmployeeID   int64
	nextAssignmentID int64
}

func newMemState() *memState {
	return &memState{
		complaints:  map[string]models.Complaint{},
		employees:   map[int64]models.Employee{},
		assignments: map[int64]models.Assignment{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.complaints {
		out.complaints[k] = v.Clone()
	}
	for k, v := range s.employees {
		out.employees[k] = v
	}
	for k, v := range s.assignments {
		out.assignments[k] = cloneAssignment(v)
	}
	out.nextEmployeeID = s.nextEmployeeID
	out.nextAssignmentID = s.nextAssignmentID
	return out
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() {}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(r Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(memRepo{st: work, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) repo() memRepo {
	return memRepo{st: m.state, now: m.now}
}

func (m *MemoryStore) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateComplaint(ctx, c)
}

func (m *MemoryStore) GetComplaint(ctx context.Context, id string) (models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetComplaint(ctx, id)
}

func (m *MemoryStore) GetComplaintByReference(ctx context.Context, ref string) (models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetComplaintByReference(ctx, ref)
}

func (m *MemoryStore) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().UpdateComplaint(ctx, c)
}

func (m *MemoryStore) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ReferenceExists(ctx, ref)
}

func (m *MemoryStore) ListComplaintsByEmployee(ctx context.Context, employeeID int64, status string) ([]models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListComplaintsByEmployee(ctx, employeeID, status)
}

func (m *MemoryStore) ListComplaintsByCustomer(ctx context.Context, customerID int64) ([]models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListComplaintsByCustomer(ctx, customerID)
}

func (m *MemoryStore) CreateEmployee(ctx context.Context, e *models.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateEmployee(ctx, e)
}

func (m *MemoryStore) GetEmployee(ctx context.Context, id int64) (models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetEmployee(ctx, id)
}

func (m *MemoryStore) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListEmployees(ctx)
}

func (m *MemoryStore) ListAvailableEmployees(ctx context.Context) ([]models.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListAvailableEmployees(ctx)
}

func (m *MemoryStore) AdjustLoad(ctx context.Context, employeeID int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().AdjustLoad(ctx, employeeID, delta)
}

func (m *MemoryStore) RecomputeLoad(ctx context.Context, employeeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().RecomputeLoad(ctx, employeeID)
}

func (m *MemoryStore) InsertAssignment(ctx context.Context, a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().InsertAssignment(ctx, a)
}

func (m *MemoryStore) UpdateAssignment(ctx context.Context, a models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().UpdateAssignment(ctx, a)
}

func (m *MemoryStore) FindActiveAssignment(ctx context.Context, complaintID string) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().FindActiveAssignment(ctx, complaintID)
}

func (m *MemoryStore) ListAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListAssignments(ctx, complaintID)
}

// memRepo implements Repository over a memState; callers hold the lock.
type memRepo struct {
	st  *memState
	now func() time.Time
}

func (r memRepo) CreateComplaint(_ context.Context, c *models.Complaint) error {
	if _, ok := r.st.complaints[c.ID]; ok {
		return ErrVersionConflict
	}
	if c.Submission != nil {
		if r.refTaken(c.Submission.ReferenceNumber, c.ID) {
			return ErrDuplicateReference
		}
	}
	now := r.now()
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	r.st.complaints[c.ID] = c.Clone()
	return nil
}

func (r memRepo) GetComplaint(_ context.Context, id string) (models.Complaint, error) {
	c, ok := r.st.complaints[id]
	if !ok {
		return models.Complaint{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (r memRepo) GetComplaintByReference(_ context.Context, ref string) (models.Complaint, error) {
	for _, c := range r.st.complaints {
		if c.Submission != nil && c.Submission.ReferenceNumber == ref {
			return c.Clone(), nil
		}
	}
	return models.Complaint{}, ErrNotFound
}

func (r memRepo) UpdateComplaint(_ context.Context, c *models.Complaint) error {
	cur, ok := r.st.complaints[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != c.Version || (!cur.IsDraft() && c.IsDraft()) {
		return ErrVersionConflict
	}
	if c.Submission != nil && r.refTaken(c.Submission.ReferenceNumber, c.ID) {
		return ErrDuplicateReference
	}
	c.Version++
	c.UpdatedAt = r.now()
	r.st.complaints[c.ID] = c.Clone()
	return nil
}

func (r memRepo) refTaken(ref string, ownerID string) bool {
	for id, c := range r.st.complaints {
		if id != ownerID && c.Submission != nil && c.Submission.ReferenceNumber == ref {
			return true
		}
	}
	return false
}

func (r memRepo) ReferenceExists(_ context.Context, ref string) (bool, error) {
	return r.refTaken(ref, ""), nil
}

func (r memRepo) ListComplaintsByEmployee(_ context.Context, employeeID int64, status string) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range r.st.complaints {
		s := c.Submission
		if s == nil || s.AssignedTo == nil || *s.AssignedTo != employeeID {
			continue
		}
		if !allStatuses(status) && string(s.Status) != status {
			continue
		}
		out = append(out, c.Clone())
	}
	sortComplaints(out)
	return out, nil
}

func (r memRepo) ListComplaintsByCustomer(_ context.Context, customerID int64) ([]models.Complaint, error) {
	var out []models.Complaint
	for _, c := range r.st.complaints {
		if c.CustomerID == customerID {
			out = append(out, c.Clone())
		}
	}
	sortComplaints(out)
	return out, nil
}

func sortComplaints(cs []models.Complaint) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

func (r memRepo) CreateEmployee(_ context.Context, e *models.Employee) error {
	if e.ID == 0 {
		r.st.nextEmployeeID++
		e.ID = r.st.nextEmployeeID
	} else if _, ok := r.st.employees[e.ID]; ok {
		return ErrVersionConflict
	} else if e.ID > r.st.nextEmployeeID {
		r.st.nextEmployeeID = e.ID
	}
	e.UpdatedAt = r.now()
	stored := *e
	stored.ActiveLoad = 0
	r.st.employees[e.ID] = stored
	e.ActiveLoad = r.activeCount(e.ID)
	return nil
}

func (r memRepo) activeCount(employeeID int64) int {
	n := 0
	for _, a := range r.st.assignments {
		if a.EmployeeID == employeeID && a.Status == models.AssignmentActive {
			n++
		}
	}
	return n
}

func (r memRepo) withActive(e models.Employee) models.Employee {
	e.ActiveLoad = r.activeCount(e.ID)
	return e
}

func (r memRepo) GetEmployee(_ context.Context, id int64) (models.Employee, error) {
	e, ok := r.st.employees[id]
	if !ok {
		return models.Employee{}, ErrNotFound
	}
	return r.withActive(e), nil
}

func (r memRepo) ListEmployees(_ context.Context) ([]models.Employee, error) {
	return r.employees(func(models.Employee) bool { return true }), nil
}

func (r memRepo) ListAvailableEmployees(_ context.Context) ([]models.Employee, error) {
	return r.employees(func(e models.Employee) bool { return e.IsAvailable }), nil
}

func (r memRepo) employees(keep func(models.Employee) bool) []models.Employee {
	var out []models.Employee
	for _, e := range r.st.employees {
		if keep(e) {
			out = append(out, r.withActive(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memRepo) AdjustLoad(_ context.Context, employeeID int64, delta int) error {
	e, ok := r.st.employees[employeeID]
	if !ok {
		return ErrNotFound
	}
	e.CurrentLoad += delta
	if e.CurrentLoad < 0 {
		e.CurrentLoad = 0
	}
	e.UpdatedAt = r.now()
	r.st.employees[employeeID] = e
	return nil
}

func (r memRepo) RecomputeLoad(_ context.Context, employeeID int64) (int, error) {
	e, ok := r.st.employees[employeeID]
	if !ok {
		return 0, ErrNotFound
	}
	e.CurrentLoad = r.activeCount(employeeID)
	e.UpdatedAt = r.now()
	r.st.employees[employeeID] = e
	return e.CurrentLoad, nil
}

func (r memRepo) InsertAssignment(_ context.Context, a *models.Assignment) error {
	if a.Status == models.AssignmentActive {
		for _, cur := range r.st.assignments {
			if cur.ComplaintID == a.ComplaintID && cur.Status == models.AssignmentActive {
				return ErrVersionConflict
			}
		}
	}
	r.st.nextAssignmentID++
	a.ID = r.st.nextAssignmentID
	r.st.assignments[a.ID] = cloneAssignment(*a)
	return nil
}

func (r memRepo) UpdateAssignment(_ context.Context, a models.Assignment) error {
	cur, ok := r.st.assignments[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.UnassignedAt = a.UnassignedAt
	cur.Status = a.Status
	cur.Remarks = a.Remarks
	r.st.assignments[a.ID] = cloneAssignment(cur)
	return nil
}

func (r memRepo) FindActiveAssignment(_ context.Context, complaintID string) (models.Assignment, error) {
	for _, a := range r.st.assignments {
		if a.ComplaintID == complaintID && a.Status == models.AssignmentActive {
			return cloneAssignment(a), nil
		}
	}
	return models.Assignment{}, ErrNotFound
}

func (r memRepo) ListAssignments(_ context.Context, complaintID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range r.st.assignments {
		if a.ComplaintID == complaintID {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneAssignment(a models.Assignment) models.Assignment {
	if a.UnassignedAt != nil {
		t := *a.UnassignedAt
		a.UnassignedAt = &t
	}
	if a.Remarks != nil {
		s := *a.Remarks
		a.Remarks = &s
	}
	return a
}
