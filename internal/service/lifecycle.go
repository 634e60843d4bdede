package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bankline/complaints/internal/ai"
	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/events"
	"github.com/bankline/complaints/internal/lock"
	"github.com/bankline/complaints/internal/models"
)

// AssignmentPolicy decides what a failed auto-assignment after submission
// means for the caller. The submission itself stands either way.
type AssignmentPolicy string

const (
	PolicyBestEffort AssignmentPolicy = "best_effort"
	PolicyStrict     AssignmentPolicy = "strict"
)

func ParseAssignmentPolicy(value string) (AssignmentPolicy, bool) {
	switch AssignmentPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyBestEffort:
		return PolicyBestEffort, true
	case PolicyStrict:
		return PolicyStrict, true
	}
	return "", false
}

const defaultReferenceAttempts = 5

// Lifecycle owns the draft -> submitted -> resolved progression of a
// complaint. Every mutation runs under the complaint's lock and inside one
// store transaction.
type Lifecycle struct {
	Store       db.Database
	Readiness   ai.ReadinessChecker
	Categorizer ai.Categorizer
	Assigner    *Assigner
	Locker      lock.Locker
	Events      events.Publisher
	References  ReferenceGenerator
	Policy      AssignmentPolicy

	MaxReferenceAttempts int
	ClassifierTimeout    time.Duration

	Now    func() time.Time
	Logger zerolog.Logger
}

type TurnResult struct {
	Complaint models.Complaint `json:"complaint"`
	Ready     bool             `json:"ready"`
	// Submitted is true only on the turn that performed the submission.
	Submitted  bool               `json:"submitted"`
	Assignment *models.Assignment `json:"assignment,omitempty"`
	AssignErr  error              `json:"-"`
}

func (l *Lifecycle) guard() guard {
	return guard{store: l.Store, locker: l.Locker, pub: l.Events, now: l.Now, logger: l.Logger}
}

func (l *Lifecycle) CreateDraft(ctx context.Context, customerID int64, chatID string) (models.Complaint, error) {
	const op = "CreateDraft"
	if customerID <= 0 {
		return models.Complaint{}, newError(KindValidation, op, "customer id is required")
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		chatID = uuid.NewString()
	} else if _, err := uuid.Parse(chatID); err != nil {
		return models.Complaint{}, newError(KindValidation, op, "chat id must be a uuid")
	}
	c := models.Complaint{ID: uuid.NewString(), CustomerID: customerID, ChatID: chatID}
	if err := l.Store.CreateComplaint(ctx, &c); err != nil {
		return models.Complaint{}, storeError(op, err)
	}
	l.Logger.Info().Str("complaint_id", c.ID).Int64("customer_id", customerID).Msg("draft created")
	return c, nil
}

// UpdateField sets one content field of a draft by its snake_case name.
func (l *Lifecycle) UpdateField(ctx context.Context, complaintID, field string, value *string) (models.Complaint, error) {
	return l.setFields(ctx, "UpdateField", complaintID, map[string]*string{field: value})
}

// SetFields applies several named field edits to a draft in one transaction.
// An unknown name rejects the whole batch; a nil value clears the field.
func (l *Lifecycle) SetFields(ctx context.Context, complaintID string, values map[string]*string) (models.Complaint, error) {
	return l.setFields(ctx, "SetFields", complaintID, values)
}

func (l *Lifecycle) setFields(ctx context.Context, op, complaintID string, values map[string]*string) (models.Complaint, error) {
	var unknown []string
	check := models.ComplaintFields{}
	for name := range values {
		if err := check.Set(name, nil); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return models.Complaint{}, newError(KindValidation, op, "unknown fields: %s", strings.Join(unknown, ", "))
	}
	return l.editDraft(ctx, op, complaintID, func(f *models.ComplaintFields) bool {
		for name, value := range values {
			_ = f.Set(name, value)
		}
		return len(values) > 0
	})
}

// UpdateFields merges every non-blank value of patch into a draft.
func (l *Lifecycle) UpdateFields(ctx context.Context, complaintID string, patch models.ComplaintFields) (models.Complaint, error) {
	return l.editDraft(ctx, "UpdateFields", complaintID, func(f *models.ComplaintFields) bool {
		return f.Merge(patch)
	})
}

func (l *Lifecycle) AddAttachment(ctx context.Context, complaintID, url string) (models.Complaint, error) {
	const op = "AddAttachment"
	url = strings.TrimSpace(url)
	if url == "" || strings.Contains(url, ",") {
		return models.Complaint{}, newError(KindValidation, op, "attachment url must be non-empty and contain no commas")
	}
	return l.editDraft(ctx, op, complaintID, func(f *models.ComplaintFields) bool {
		before := len(models.SplitAttachments(f.AttachmentURLs))
		f.AttachmentURLs = models.AppendAttachment(f.AttachmentURLs, url)
		return len(models.SplitAttachments(f.AttachmentURLs)) != before
	})
}

func (l *Lifecycle) editDraft(ctx context.Context, op, complaintID string, edit func(f *models.ComplaintFields) bool) (models.Complaint, error) {
	var out models.Complaint
	err := l.guard().mutate(ctx, op, complaintID, func(r db.Repository) error {
		c, err := r.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		if !c.IsDraft() {
			return newError(KindInvalidTransition, op, "complaint %s is already submitted", complaintID)
		}
		if edit(&c.Fields) {
			if err := r.UpdateComplaint(ctx, &c); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	return out, err
}

// Submit turns a draft into an open complaint with a fresh reference number.
// On a complaint that is already submitted it changes nothing and reports
// false, so retried requests are safe.
func (l *Lifecycle) Submit(ctx context.Context, complaintID string, extracted models.ComplaintFields) (models.Complaint, bool, error) {
	const op = "Submit"
	g := l.guard()
	attempts := l.MaxReferenceAttempts
	if attempts <= 0 {
		attempts = defaultReferenceAttempts
	}

	var (
		out       models.Complaint
		submitted bool
	)
	for try := 1; ; try++ {
		err := g.mutate(ctx, op, complaintID, func(r db.Repository) error {
			submitted = false
			c, err := r.GetComplaint(ctx, complaintID)
			if err != nil {
				return err
			}
			out = c
			if !c.IsDraft() {
				return nil
			}
			c.Fields.Merge(normalizeExtracted(extracted))
			ref, err := l.allocateReference(ctx, r, op, attempts)
			if err != nil {
				return err
			}
			c.Submission = &models.Submission{
				ReferenceNumber: ref,
				Status:          models.StatusOpen,
				SubmittedAt:     g.clock(),
			}
			if err := r.UpdateComplaint(ctx, &c); err != nil {
				return err
			}
			out = c
			submitted = true
			return nil
		})
		if err == nil {
			break
		}
		// The unique index caught a reference taken between check and write.
		if errors.Is(err, db.ErrDuplicateReference) && try < attempts {
			l.Logger.Warn().Str("complaint_id", complaintID).Int("attempt", try).Msg("reference collision, retrying")
			continue
		}
		return models.Complaint{}, false, err
	}

	if submitted {
		g.publish(ctx, complaintEvent(events.TypeSubmitted, out))
		l.Logger.Info().
			Str("complaint_id", out.ID).
			Str("reference_number", out.Submission.ReferenceNumber).
			Msg("complaint submitted")
	}
	return out, submitted, nil
}

func (l *Lifecycle) allocateReference(ctx context.Context, r db.Repository, op string, attempts int) (string, error) {
	gen := l.References
	if gen == nil {
		gen = TimestampReferences{Now: l.Now}
	}
	for i := 0; i < attempts; i++ {
		ref := gen.Generate()
		taken, err := r.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !taken {
			return ref, nil
		}
	}
	return "", newError(KindStoreWriteFailure, op, "no free reference number after %d attempts", attempts)
}

// normalizeExtracted maps classifier labels onto the taxonomy. Labels
// outside it are dropped.
func normalizeExtracted(f models.ComplaintFields) models.ComplaintFields {
	if f.Category != nil {
		if c, ok := models.NormalizeCategory(*f.Category); ok {
			f.Category = &c
		} else {
			f.Category = nil
		}
	}
	if f.Sentiment != nil {
		if s, ok := models.NormalizeSentiment(*f.Sentiment); ok {
			f.Sentiment = &s
		} else {
			f.Sentiment = nil
		}
	}
	return f
}

// ProcessTurn runs the readiness check for one conversation turn and, when
// the classifier reports ready, categorizes, submits and auto-assigns.
func (l *Lifecycle) ProcessTurn(ctx context.Context, complaintID string, transcript []ai.ChatMessage) (TurnResult, error) {
	const op = "ProcessTurn"
	c, err := l.Get(ctx, complaintID)
	if err != nil {
		return TurnResult{}, err
	}
	if !c.IsDraft() {
		return TurnResult{Complaint: c}, nil
	}
	readiness, err := l.checkReadiness(ctx, op, complaintID, transcript)
	if err != nil {
		return TurnResult{Complaint: c}, err
	}

	if !readiness.IsReady {
		if !readiness.Fields.Empty() {
			if c, err = l.UpdateFields(ctx, complaintID, readiness.Fields); err != nil {
				return TurnResult{}, err
			}
		}
		return TurnResult{Complaint: c}, nil
	}

	fields := readiness.Fields
	l.categorize(ctx, complaintID, transcript, &fields)
	return l.SubmitAndAssign(ctx, complaintID, fields)
}

func (l *Lifecycle) checkReadiness(ctx context.Context, op, complaintID string, transcript []ai.ChatMessage) (ai.Readiness, error) {
	if l.Readiness == nil {
		return ai.Readiness{}, newError(KindClassifierUnavailable, op, "no readiness classifier configured")
	}
	cctx, cancel := l.classifierContext(ctx)
	defer cancel()
	readiness, err := l.Readiness.CheckReadiness(cctx, transcript)
	if err != nil {
		l.Logger.Warn().Err(err).Str("complaint_id", complaintID).Msg("readiness check failed")
		return ai.Readiness{}, &Error{Kind: KindClassifierUnavailable, Op: op, Msg: "readiness check failed", Err: err}
	}
	return readiness, nil
}

// Confirm is the customer's explicit submit. It still needs the readiness
// classifier to accept the transcript, and the draft must end up with a
// description. Fields supplied by the customer win over extracted ones.
// A complaint that is already submitted is returned unchanged.
func (l *Lifecycle) Confirm(ctx context.Context, complaintID string, fields models.ComplaintFields, transcript []ai.ChatMessage) (TurnResult, error) {
	const op = "Confirm"
	c, err := l.Get(ctx, complaintID)
	if err != nil {
		return TurnResult{}, err
	}
	if !c.IsDraft() {
		return TurnResult{Complaint: c, Ready: true}, nil
	}
	if len(transcript) == 0 {
		return TurnResult{Complaint: c}, newError(KindReadinessNotMet, op, "a conversation transcript is required to submit")
	}
	readiness, err := l.checkReadiness(ctx, op, complaintID, transcript)
	if err != nil {
		return TurnResult{Complaint: c}, err
	}
	if !readiness.IsReady {
		return TurnResult{Complaint: c}, newError(KindReadinessNotMet, op, "the conversation does not confirm a complete complaint yet")
	}

	patch := readiness.Fields
	patch.Merge(fields)
	merged := c.Fields
	merged.Merge(normalizeExtracted(patch))
	if merged.Description == nil || strings.TrimSpace(*merged.Description) == "" {
		return TurnResult{Complaint: c}, newError(KindReadinessNotMet, op, "a description is required to submit")
	}
	l.categorize(ctx, complaintID, transcript, &patch)
	return l.SubmitAndAssign(ctx, complaintID, patch)
}

// SubmitAndAssign submits the draft and, when this call did the submission,
// auto-assigns it under the configured policy.
func (l *Lifecycle) SubmitAndAssign(ctx context.Context, complaintID string, fields models.ComplaintFields) (TurnResult, error) {
	c, submitted, err := l.Submit(ctx, complaintID, fields)
	if err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{Complaint: c, Ready: true, Submitted: submitted}
	if !submitted || l.Assigner == nil {
		return res, nil
	}

	assigned, err := l.Assigner.AssignComplaint(ctx, complaintID, nil, nil)
	if err != nil {
		res.AssignErr = err
		l.Logger.Warn().Err(err).
			Str("complaint_id", complaintID).
			Str("policy", string(l.Policy)).
			Msg("auto-assignment failed, complaint left open")
		if l.Policy == PolicyStrict {
			return res, err
		}
		return res, nil
	}
	res.Complaint = assigned.Complaint
	res.Assignment = &assigned.Assignment
	return res, nil
}

// categorize fills category and sentiment the readiness pass left empty.
// Failures are logged and the submission goes ahead without them.
func (l *Lifecycle) categorize(ctx context.Context, complaintID string, transcript []ai.ChatMessage, fields *models.ComplaintFields) {
	if l.Categorizer == nil {
		return
	}
	cctx, cancel := l.classifierContext(ctx)
	defer cancel()
	cat, err := l.Categorizer.Categorize(cctx, transcript)
	if err != nil {
		l.Logger.Warn().Err(err).Str("complaint_id", complaintID).Msg("categorization failed")
		return
	}
	if fields.Category == nil && cat.Category != "" {
		v := cat.Category
		fields.Category = &v
	}
	if fields.Sentiment == nil && cat.Sentiment != "" {
		v := cat.Sentiment
		fields.Sentiment = &v
	}
}

func (l *Lifecycle) classifierContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.ClassifierTimeout > 0 {
		return context.WithTimeout(ctx, l.ClassifierTimeout)
	}
	return context.WithCancel(ctx)
}

// UpdateStatus moves a submitted complaint to status. Closed and escalated
// are terminal; repeating the current terminal status is a no-op and any
// other change out of it is rejected.
func (l *Lifecycle) UpdateStatus(ctx context.Context, complaintID string, status models.Status, remarks *string) (models.Complaint, error) {
	const op = "UpdateStatus"
	parsed, ok := models.ParseStatus(string(status))
	if !ok {
		return models.Complaint{}, newError(KindValidation, op, "unknown status %q", status)
	}
	status = parsed
	g := l.guard()
	var (
		out      models.Complaint
		changed  bool
		released *models.Assignment
	)
	err := g.mutate(ctx, op, complaintID, func(r db.Repository) error {
		changed, released = false, nil
		c, err := r.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		current, submitted := c.Status()
		if !submitted {
			return newError(KindInvalidTransition, op, "complaint %s is still a draft", complaintID)
		}
		out = c
		if current.Terminal() {
			if current == status {
				return nil
			}
			return newError(KindInvalidTransition, op, "complaint %s is %s and cannot become %s", complaintID, current, status)
		}
		if current == status {
			return nil
		}

		now := g.clock()
		c.Submission.Status = status
		if status.Terminal() {
			c.Submission.ResolvedAt = &now
			if released, err = releaseActive(ctx, r, complaintID, now); err != nil {
				return err
			}
		}
		if status == models.StatusClosed && remarks != nil && strings.TrimSpace(*remarks) != "" {
			notes := strings.TrimSpace(*remarks)
			c.Submission.ResolutionNotes = &notes
		}
		if err := r.UpdateComplaint(ctx, &c); err != nil {
			return err
		}
		out = c
		changed = true
		return nil
	})
	if err != nil {
		return models.Complaint{}, err
	}
	if changed {
		g.publish(ctx, complaintEvent(events.TypeStatusChanged, out))
		ev := l.Logger.Info().Str("complaint_id", complaintID).Str("status", string(status))
		if released != nil {
			ev = ev.Int64("released_employee_id", released.EmployeeID)
		}
		ev.Msg("status updated")
	}
	return out, nil
}

// UpdateCategory edits category and sub-category in any state. Blank
// arguments leave the matching field untouched.
func (l *Lifecycle) UpdateCategory(ctx context.Context, complaintID string, category, subCategory *string) (models.Complaint, error) {
	const op = "UpdateCategory"
	var patch models.ComplaintFields
	if category != nil && strings.TrimSpace(*category) != "" {
		v, ok := models.NormalizeCategory(*category)
		if !ok {
			return models.Complaint{}, newError(KindValidation, op, "unknown category %q", *category)
		}
		patch.Category = &v
	}
	if subCategory != nil && strings.TrimSpace(*subCategory) != "" {
		v := strings.TrimSpace(*subCategory)
		patch.SubCategory = &v
	}
	if patch.Empty() {
		return l.Get(ctx, complaintID)
	}

	g := l.guard()
	var (
		out     models.Complaint
		changed bool
	)
	err := g.mutate(ctx, op, complaintID, func(r db.Repository) error {
		c, err := r.GetComplaint(ctx, complaintID)
		if err != nil {
			return err
		}
		out = c
		if changed = c.Fields.Merge(patch); !changed {
			return nil
		}
		if err := r.UpdateComplaint(ctx, &c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return models.Complaint{}, err
	}
	if changed {
		g.publish(ctx, complaintEvent(events.TypeCategoryChanged, out))
	}
	return out, nil
}

func (l *Lifecycle) Get(ctx context.Context, complaintID string) (models.Complaint, error) {
	c, err := l.Store.GetComplaint(ctx, complaintID)
	return c, storeError("Get", err)
}

func (l *Lifecycle) GetByReference(ctx context.Context, ref string) (models.Complaint, error) {
	c, err := l.Store.GetComplaintByReference(ctx, strings.ToUpper(strings.TrimSpace(ref)))
	return c, storeError("GetByReference", err)
}

// ListForEmployee accepts "" or "all" for every status.
func (l *Lifecycle) ListForEmployee(ctx context.Context, employeeID int64, status string) ([]models.Complaint, error) {
	const op = "ListForEmployee"
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != "all" {
		if _, ok := models.ParseStatus(status); !ok {
			return nil, newError(KindValidation, op, "unknown status %q", status)
		}
	}
	out, err := l.Store.ListComplaintsByEmployee(ctx, employeeID, status)
	return out, storeError(op, err)
}

func (l *Lifecycle) ListForCustomer(ctx context.Context, customerID int64) ([]models.Complaint, error) {
	out, err := l.Store.ListComplaintsByCustomer(ctx, customerID)
	return out, storeError("ListForCustomer", err)
}
