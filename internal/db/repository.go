package db

import (
	"context"
	"errors"

	"github.com/bankline/complaints/internal/models"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrVersionConflict    = errors.New("complaint was modified concurrently")
	ErrDuplicateReference = errors.New("reference number already in use")
)

// Repository is the CRUD surface the lifecycle and assignment logic runs on.
// Every method is usable both on the root store and inside WithTx.
type Repository interface {
	CreateComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaint(ctx context.Context, id string) (models.Complaint, error)
	GetComplaintByReference(ctx context.Context, ref string) (models.Complaint, error)
	// UpdateComplaint writes c if its Version still matches the stored row,
	// then advances c.Version.
	UpdateComplaint(ctx context.Context, c *models.Complaint) error
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	ListComplaintsByEmployee(ctx context.Context, employeeID int64, status string) ([]models.Complaint, error)
	ListComplaintsByCustomer(ctx context.Context, customerID int64) ([]models.Complaint, error)

	CreateEmployee(ctx context.Context, e *models.Employee) error
	GetEmployee(ctx context.Context, id int64) (models.Employee, error)
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	ListAvailableEmployees(ctx context.Context) ([]models.Employee, error)
	// AdjustLoad changes current_load by delta in one statement, never below zero.
	AdjustLoad(ctx context.Context, employeeID int64, delta int) error
	// RecomputeLoad resets current_load to the number of active assignment rows.
	RecomputeLoad(ctx context.Context, employeeID int64) (int, error)

	InsertAssignment(ctx context.Context, a *models.Assignment) error
	UpdateAssignment(ctx context.Context, a models.Assignment) error
	FindActiveAssignment(ctx context.Context, complaintID string) (models.Assignment, error)
	ListAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error)
}

type Database interface {
	Repository
	WithTx(ctx context.Context, fn func(r Repository) error) error
	Ping(ctx context.Context) error
	Close()
}

func allStatuses(status string) bool {
	return status == "" || status == "all"
}
