package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bankline/complaints/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed Database.
type Store struct {
	pgRepo
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pgRepo: pgRepo{q: pool}, Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(r Repository) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(pgRepo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgRepo struct {
	q querier
}

const complaintColumns = `id::text, customer_id, chat_id::text, reference_number,
	description, additional_details, attachment_urls, desired_resolution,
	category, sub_category, sentiment, urgency_level, assistant_notes,
	assigned_to, is_draft, status, resolution_notes, resolved_at, submitted_at,
	version, created_at, updated_at`

func scanComplaint(row pgx.Row) (models.Complaint, error) {
	var (
		c           models.Complaint
		ref         *string
		assignedTo  *int64
		isDraft     bool
		status      *string
		notes       *string
		resolvedAt  *time.Time
		submittedAt *time.Time
	)
	err := row.Scan(
		&c.ID, &c.CustomerID, &c.ChatID, &ref,
		&c.Fields.Description, &c.Fields.AdditionalDetails, &c.Fields.AttachmentURLs, &c.Fields.DesiredResolution,
		&c.Fields.Category, &c.Fields.SubCategory, &c.Fields.Sentiment, &c.Fields.UrgencyLevel, &c.Fields.AssistantNotes,
		&assignedTo, &isDraft, &status, &notes, &resolvedAt, &submittedAt,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Complaint{}, ErrNotFound
		}
		return models.Complaint{}, err
	}
	if !isDraft {
		c.Submission = &models.Submission{
			ReferenceNumber: derefString(ref),
			Status:          models.Status(derefString(status)),
			AssignedTo:      assignedTo,
			ResolutionNotes: notes,
			ResolvedAt:      resolvedAt,
		}
		if submittedAt != nil {
			c.Submission.SubmittedAt = *submittedAt
		}
	}
	return c, nil
}

func collectComplaints(rows pgx.Rows) ([]models.Complaint, error) {
	defer rows.Close()
	var out []models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// submissionColumns flattens the optional submission into column values.
func submissionColumns(c *models.Complaint) (ref *string, assignedTo *int64, status *string, notes *string, resolvedAt *time.Time, submittedAt *time.Time) {
	s := c.Submission
	if s == nil {
		return nil, nil, nil, nil, nil, nil
	}
	r := s.ReferenceNumber
	st := string(s.Status)
	sub := s.SubmittedAt
	return &r, s.AssignedTo, &st, s.ResolutionNotes, s.ResolvedAt, &sub
}

func (r pgRepo) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	ref, assignedTo, status, notes, resolvedAt, submittedAt := submissionColumns(c)
	err := r.q.QueryRow(ctx, `
		INSERT INTO complaints (id, customer_id, chat_id, reference_number,
			description, additional_details, attachment_urls, desired_resolution,
			category, sub_category, sentiment, urgency_level, assistant_notes,
			assigned_to, is_draft, status, resolution_notes, resolved_at, submitted_at,
			version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1,NOW(),NOW())
		RETURNING version, created_at, updated_at
	`, c.ID, c.CustomerID, c.ChatID, ref,
		c.Fields.Description, c.Fields.AdditionalDetails, c.Fields.AttachmentURLs, c.Fields.DesiredResolution,
		c.Fields.Category, c.Fields.SubCategory, c.Fields.Sentiment, c.Fields.UrgencyLevel, c.Fields.AssistantNotes,
		assignedTo, c.IsDraft(), status, notes, resolvedAt, submittedAt,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
	return mapWriteError(err)
}

func (r pgRepo) GetComplaint(ctx context.Context, id string) (models.Complaint, error) {
	return scanComplaint(r.q.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
}

func (r pgRepo) GetComplaintByReference(ctx context.Context, ref string) (models.Complaint, error) {
	return scanComplaint(r.q.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE reference_number = $1`, ref))
}

func (r pgRepo) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	ref, assignedTo, status, notes, resolvedAt, submittedAt := submissionColumns(c)
	// A submitted row never goes back to draft, whatever the caller sends.
	err := r.q.QueryRow(ctx, `
		UPDATE complaints SET
			reference_number = $3,
			description = $4, additional_details = $5, attachment_urls = $6, desired_resolution = $7,
			category = $8, sub_category = $9, sentiment = $10, urgency_level = $11, assistant_notes = $12,
			assigned_to = $13, is_draft = $14, status = $15, resolution_notes = $16,
			resolved_at = $17, submitted_at = $18,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND (is_draft OR NOT $14)
		RETURNING version, updated_at
	`, c.ID, c.Version, ref,
		c.Fields.Description, c.Fields.AdditionalDetails, c.Fields.AttachmentURLs, c.Fields.DesiredResolution,
		c.Fields.Category, c.Fields.SubCategory, c.Fields.Sentiment, c.Fields.UrgencyLevel, c.Fields.AssistantNotes,
		assignedTo, c.IsDraft(), status, notes, resolvedAt, submittedAt,
	).Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if qerr := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM complaints WHERE id = $1)`, c.ID).Scan(&exists); qerr != nil {
			return qerr
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return mapWriteError(err)
}

func (r pgRepo) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM complaints WHERE reference_number = $1)`, ref).Scan(&exists)
	return exists, err
}

func (r pgRepo) ListComplaintsByEmployee(ctx context.Context, employeeID int64, status string) ([]models.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE assigned_to = $1 AND NOT is_draft`
	args := []any{employeeID}
	if !allStatuses(status) {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id ASC"
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

func (r pgRepo) ListComplaintsByCustomer(ctx context.Context, customerID int64) ([]models.Complaint, error) {
	rows, err := r.q.Query(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE customer_id = $1 ORDER BY created_at DESC, id ASC`, customerID)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

const employeeColumns = `e.id, e.name, e.email, e.role, e.department, e.specialization,
	e.is_available, e.max_load, e.current_load,
	(SELECT COUNT(*) FROM complaint_assignments a WHERE a.employee_id = e.id AND a.assignment_status = 'active')::int,
	e.updated_at`

func scanEmployee(row pgx.Row) (models.Employee, error) {
	var e models.Employee
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.Department, &e.Specialization,
		&e.IsAvailable, &e.MaxLoad, &e.CurrentLoad, &e.ActiveLoad, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Employee{}, ErrNotFound
	}
	return e, err
}

func (r pgRepo) listEmployees(ctx context.Context, where string) ([]models.Employee, error) {
	rows, err := r.q.Query(ctx, `SELECT `+employeeColumns+` FROM employees e `+where+` ORDER BY e.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r pgRepo) CreateEmployee(ctx context.Context, e *models.Employee) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO employees (name, email, role, department, specialization, is_available, max_load, current_load, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		RETURNING id, updated_at
	`, e.Name, e.Email, e.Role, e.Department, e.Specialization, e.IsAvailable, e.MaxLoad, e.CurrentLoad).Scan(&e.ID, &e.UpdatedAt)
	return mapWriteError(err)
}

func (r pgRepo) GetEmployee(ctx context.Context, id int64) (models.Employee, error) {
	return scanEmployee(r.q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees e WHERE e.id = $1`, id))
}

func (r pgRepo) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	return r.listEmployees(ctx, "")
}

func (r pgRepo) ListAvailableEmployees(ctx context.Context) ([]models.Employee, error) {
	return r.listEmployees(ctx, "WHERE e.is_available")
}

func (r pgRepo) AdjustLoad(ctx context.Context, employeeID int64, delta int) error {
	tag, err := r.q.Exec(ctx, `UPDATE employees SET current_load = GREATEST(current_load + $1, 0), updated_at = NOW() WHERE id = $2`, delta, employeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeLoad locks the employee row in its own statement first. Under
// READ COMMITTED the counting UPDATE then starts with a snapshot taken after
// any competing assignment transaction has committed, so its row is counted.
func (r pgRepo) RecomputeLoad(ctx context.Context, employeeID int64) (int, error) {
	var one int
	err := r.q.QueryRow(ctx, `SELECT 1 FROM employees WHERE id = $1 FOR NO KEY UPDATE`, employeeID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var load int
	err = r.q.QueryRow(ctx, `
		UPDATE employees e SET current_load = (
			SELECT COUNT(*) FROM complaint_assignments a
			WHERE a.employee_id = e.id AND a.assignment_status = 'active'
		), updated_at = NOW()
		WHERE e.id = $1
		RETURNING e.current_load
	`, employeeID).Scan(&load)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return load, err
}

const assignmentColumns = `id, complaint_id::text, employee_id, assigned_at, unassigned_at, assignment_status, remarks`

func scanAssignment(row pgx.Row) (models.Assignment, error) {
	var a models.Assignment
	var status string
	err := row.Scan(&a.ID, &a.ComplaintID, &a.EmployeeID, &a.AssignedAt, &a.UnassignedAt, &status, &a.Remarks)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Assignment{}, ErrNotFound
	}
	a.Status = models.AssignmentStatus(status)
	return a, err
}

func (r pgRepo) InsertAssignment(ctx context.Context, a *models.Assignment) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO complaint_assignments (complaint_id, employee_id, assigned_at, unassigned_at, assignment_status, remarks)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, a.ComplaintID, a.EmployeeID, a.AssignedAt, a.UnassignedAt, string(a.Status), a.Remarks).Scan(&a.ID)
	return mapWriteError(err)
}

func (r pgRepo) UpdateAssignment(ctx context.Context, a models.Assignment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE complaint_assignments SET unassigned_at = $2, assignment_status = $3, remarks = $4
		WHERE id = $1
	`, a.ID, a.UnassignedAt, string(a.Status), a.Remarks)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r pgRepo) FindActiveAssignment(ctx context.Context, complaintID string) (models.Assignment, error) {
	return scanAssignment(r.q.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM complaint_assignments
		WHERE complaint_id = $1 AND assignment_status = 'active'
		FOR UPDATE
	`, complaintID))
}

func (r pgRepo) ListAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error) {
	rows, err := r.q.Query(ctx, `SELECT `+assignmentColumns+` FROM complaint_assignments WHERE complaint_id = $1 ORDER BY assigned_at ASC, id ASC`, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "complaints_reference_number_key" {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, pgErr.Detail)
	}
	return err
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
