package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
	StatusEscalated  Status = "escalated"
)

var allStatuses = []Status{StatusOpen, StatusAssigned, StatusInProgress, StatusClosed, StatusEscalated}

func ParseStatus(value string) (Status, bool) {
	v := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if v == s {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether no further status change is permitted.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusEscalated
}

// ComplaintFields holds the content a customer conversation accumulates.
// A nil pointer means the field has not been populated yet.
type ComplaintFields struct {
	Description       *string `json:"description"`
	AdditionalDetails *string `json:"additional_details"`
	AttachmentURLs    *string `json:"attachment_urls"`
	DesiredResolution *string `json:"desired_resolution"`
	Category          *string `json:"category"`
	SubCategory       *string `json:"sub_category"`
	Sentiment         *string `json:"sentiment"`
	UrgencyLevel      *string `json:"urgency_level"`
	AssistantNotes    *string `json:"assistant_notes"`
}

// FieldNames lists the names accepted by ComplaintFields.Set.
var FieldNames = []string{
	"description",
	"additional_details",
	"attachment_urls",
	"desired_resolution",
	"category",
	"sub_category",
	"sentiment",
	"urgency_level",
	"assistant_notes",
}

func (f *ComplaintFields) ref(field string) (**string, bool) {
	switch field {
	case "description":
		return &f.Description, true
	case "additional_details":
		return &f.AdditionalDetails, true
	case "attachment_urls":
		return &f.AttachmentURLs, true
	case "desired_resolution":
		return &f.DesiredResolution, true
	case "category":
		return &f.Category, true
	case "sub_category":
		return &f.SubCategory, true
	case "sentiment":
		return &f.Sentiment, true
	case "urgency_level":
		return &f.UrgencyLevel, true
	case "assistant_notes":
		return &f.AssistantNotes, true
	}
	return nil, false
}

// Set assigns a single field by its snake_case name. A nil value clears it.
func (f *ComplaintFields) Set(field string, value *string) error {
	p, ok := f.ref(strings.ToLower(strings.TrimSpace(field)))
	if !ok {
		return fmt.Errorf("unknown complaint field %q", field)
	}
	if value == nil {
		*p = nil
		return nil
	}
	v := *value
	*p = &v
	return nil
}

// Merge copies every non-blank value of patch into f and reports whether
// anything changed.
func (f *ComplaintFields) Merge(patch ComplaintFields) bool {
	changed := false
	for _, name := range FieldNames {
		src, _ := patch.ref(name)
		if *src == nil || strings.TrimSpace(**src) == "" {
			continue
		}
		dst, _ := f.ref(name)
		if *dst != nil && **dst == **src {
			continue
		}
		v := **src
		*dst = &v
		changed = true
	}
	return changed
}

func (f ComplaintFields) Empty() bool {
	for _, name := range FieldNames {
		p, _ := f.ref(name)
		if *p != nil && strings.TrimSpace(**p) != "" {
			return false
		}
	}
	return true
}

// Submission exists only once a complaint has left the draft phase.
type Submission struct {
	ReferenceNumber string     `json:"reference_number"`
	Status          Status     `json:"status"`
	AssignedTo      *int64     `json:"assigned_to"`
	ResolutionNotes *string    `json:"resolution_notes"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	SubmittedAt     time.Time  `json:"submitted_at"`
}

type Complaint struct {
	ID         string
	CustomerID int64
	ChatID     string
	Fields     ComplaintFields
	Submission *Submission
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c Complaint) IsDraft() bool {
	return c.Submission == nil
}

func (c Complaint) Status() (Status, bool) {
	if c.Submission == nil {
		return "", false
	}
	return c.Submission.Status, true
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c Complaint) Clone() Complaint {
	out := c
	out.Fields = c.Fields.clone()
	if c.Submission != nil {
		s := *c.Submission
		s.AssignedTo = cloneInt64(c.Submission.AssignedTo)
		s.ResolutionNotes = cloneString(c.Submission.ResolutionNotes)
		if c.Submission.ResolvedAt != nil {
			t := *c.Submission.ResolvedAt
			s.ResolvedAt = &t
		}
		out.Submission = &s
	}
	return out
}

func (f ComplaintFields) clone() ComplaintFields {
	out := ComplaintFields{}
	for _, name := range FieldNames {
		src, _ := f.ref(name)
		dst, _ := out.ref(name)
		*dst = cloneString(*src)
	}
	return out
}

type complaintJSON struct {
	ID         string `json:"id"`
	CustomerID int64  `json:"customer_id"`
	ChatID     string `json:"chat_id"`
	ComplaintFields
	IsDraft         bool       `json:"is_draft"`
	ReferenceNumber *string    `json:"reference_number"`
	Status          *Status    `json:"status"`
	AssignedTo      *int64     `json:"assigned_to"`
	ResolutionNotes *string    `json:"resolution_notes"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	SubmittedAt     *time.Time `json:"submitted_at"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MarshalJSON renders the flat record shape the dashboards consume.
func (c Complaint) MarshalJSON() ([]byte, error) {
	out := complaintJSON{
		ID:              c.ID,
		CustomerID:      c.CustomerID,
		ChatID:          c.ChatID,
		ComplaintFields: c.Fields,
		IsDraft:         c.IsDraft(),
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if s := c.Submission; s != nil {
		ref := s.ReferenceNumber
		status := s.Status
		submitted := s.SubmittedAt
		out.ReferenceNumber = &ref
		out.Status = &status
		out.AssignedTo = s.AssignedTo
		out.ResolutionNotes = s.ResolutionNotes
		out.ResolvedAt = s.ResolvedAt
		out.SubmittedAt = &submitted
	}
	return json.Marshal(out)
}

type Employee struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Department     string    `json:"department"`
	Specialization string    `json:"specialization"`
	IsAvailable    bool      `json:"is_available"`
	MaxLoad        int       `json:"max_load"`
	CurrentLoad    int       `json:"current_load"`
	ActiveLoad     int       `json:"active_load"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type AssignmentStatus string

const (
	AssignmentActive     AssignmentStatus = "active"
	AssignmentReassigned AssignmentStatus = "reassigned"
	AssignmentClosed     AssignmentStatus = "closed"
)

type Assignment struct {
	ID           int64            `json:"id"`
	ComplaintID  string           `json:"complaint_id"`
	EmployeeID   int64            `json:"employee_id"`
	AssignedAt   time.Time        `json:"assigned_at"`
	UnassignedAt *time.Time       `json:"unassigned_at"`
	Status       AssignmentStatus `json:"assignment_status"`
	Remarks      *string          `json:"remarks"`
}

type PrincipalType string

const (
	PrincipalCustomer PrincipalType = "customer"
	PrincipalEmployee PrincipalType = "employee"
)

// Principal is the caller identity issued by the session provider.
type Principal struct {
	ID   int64         `json:"id"`
	Type PrincipalType `json:"type"`
	Role string        `json:"role"`
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	i := *v
	return &i
}
