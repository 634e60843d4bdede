package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/bankline/complaints/internal/ai"
	"github.com/bankline/complaints/internal/models"
	"github.com/bankline/complaints/internal/service"
	"github.com/bankline/complaints/internal/storage"
)

type CreateComplaintRequest struct {
	ChatID string `json:"chat_id" validate:"omitempty,uuid"`
}

// @Summary Open a draft complaint
// @Tags complaints
// @Accept json
// @Produce json
// @Param body body CreateComplaintRequest false "Conversation to attach the draft to"
// @Success 201 {object} map[string]any
// @Router /api/complaints [post]
func (h *Handler) CreateComplaint(c *gin.Context) {
	var req CreateComplaintRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	complaint, err := h.Lifecycle.CreateDraft(c.Request.Context(), principal(c).ID, req.ChatID)
	if err != nil {
		h.writeServiceError(c, "Failed to create complaint", err)
		return
	}
	c.JSON(http.StatusCreated, complaint)
}

func (h *Handler) MyComplaints(c *gin.Context) {
	items, err := h.Lifecycle.ListForCustomer(c.Request.Context(), principal(c).ID)
	if err != nil {
		h.writeServiceError(c, "Failed to list complaints", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Complaint details
// @Tags complaints
// @Produce json
// @Param id path string true "Complaint ID"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id} [get]
func (h *Handler) ComplaintDetails(c *gin.Context) {
	complaint, ok := h.loadVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// UpdateFieldsRequest carries single-field edits keyed by snake_case name.
// A null value clears the field.
type UpdateFieldsRequest struct {
	Fields map[string]*string `json:"fields" validate:"required,min=1"`
}

// @Summary Edit draft fields
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body UpdateFieldsRequest true "Fields"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id}/fields [patch]
func (h *Handler) UpdateFields(c *gin.Context) {
	if _, ok := h.loadVisible(c); !ok {
		return
	}
	var req UpdateFieldsRequest
	if !h.bind(c, &req) {
		return
	}
	var unknown []string
	for name := range req.Fields {
		if !knownField(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown complaint fields", unknown)
		return
	}

	complaint, err := h.Lifecycle.SetFields(c.Request.Context(), c.Param("id"), req.Fields)
	if err != nil {
		h.writeServiceError(c, "Failed to update complaint", err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func knownField(name string) bool {
	for _, f := range models.FieldNames {
		if f == name {
			return true
		}
	}
	return false
}

type TurnRequest struct {
	Messages []ai.ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

type TurnResponse struct {
	Complaint             models.Complaint   `json:"complaint"`
	Ready                 bool               `json:"ready"`
	Submitted             bool               `json:"submitted"`
	Assignment            *models.Assignment `json:"assignment,omitempty"`
	AssignmentPending     bool               `json:"assignment_pending"`
	ClassifierUnavailable bool               `json:"classifier_unavailable"`
}

// @Summary Process a conversation turn
// @Description Runs the readiness check; submits and assigns once the conversation is ready
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body TurnRequest true "Transcript so far"
// @Success 200 {object} TurnResponse
// @Router /api/complaints/{id}/turns [post]
func (h *Handler) ProcessTurn(c *gin.Context) {
	if _, ok := h.loadVisible(c); !ok {
		return
	}
	var req TurnRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Lifecycle.ProcessTurn(c.Request.Context(), c.Param("id"), req.Messages)
	h.writeTurn(c, res, err)
}

// SubmitRequest is the customer's explicit confirmation. The transcript is
// re-checked for readiness; Fields override anything extracted from it.
type SubmitRequest struct {
	Messages []ai.ChatMessage       `json:"messages" validate:"required,min=1,dive"`
	Fields   models.ComplaintFields `json:"fields"`
}

// @Summary Confirm and submit a draft
// @Description Submits only when the readiness check accepts the transcript and a description is present
// @Tags complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body SubmitRequest true "Transcript and final fields"
// @Success 200 {object} TurnResponse
// @Failure 409 {object} map[string]any
// @Router /api/complaints/{id}/submit [post]
func (h *Handler) Submit(c *gin.Context) {
	if _, ok := h.loadVisible(c); !ok {
		return
	}
	var req SubmitRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Lifecycle.Confirm(c.Request.Context(), c.Param("id"), req.Fields, req.Messages)
	h.writeTurn(c, res, err)
}

// writeTurn keeps classifier and assignment failures away from customers:
// the conversation carries on and the complaint shows as pending.
func (h *Handler) writeTurn(c *gin.Context, res service.TurnResult, err error) {
	out := TurnResponse{
		Complaint:  res.Complaint,
		Ready:      res.Ready,
		Submitted:  res.Submitted,
		Assignment: res.Assignment,
	}
	switch {
	case err == nil:
	case errors.Is(err, service.ErrClassifierUnavailable):
		out.ClassifierUnavailable = true
	case res.Submitted:
		// Strict policy surfaced an assignment failure after submission.
	default:
		h.writeServiceError(c, "Failed to process complaint", err)
		return
	}
	out.AssignmentPending = out.Submitted && out.Assignment == nil
	c.JSON(http.StatusOK, out)
}

type AttachmentRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

// @Summary Request an attachment upload URL
// @Description Returns a presigned PUT URL and records the object key on the draft
// @Tags attachments
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body AttachmentRequest true "File metadata"
// @Success 201 {object} map[string]any
// @Router /api/complaints/{id}/attachments [post]
func (h *Handler) CreateAttachment(c *gin.Context) {
	complaint, ok := h.loadVisible(c)
	if !ok {
		return
	}
	var req AttachmentRequest
	if !h.bind(c, &req) {
		return
	}
	if h.MaxUploadBytes > 0 && req.Size > h.MaxUploadBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Attachment exceeds upload limit", gin.H{"max_bytes": h.MaxUploadBytes})
		return
	}
	if !complaint.IsDraft() {
		writeError(c, http.StatusConflict, "INVALID_TRANSITION", "Attachments can only be added to drafts", nil)
		return
	}

	key := storage.AttachmentKey(complaint.ID, req.Filename)
	uploadURL, err := h.Storage.UploadURL(c.Request.Context(), key, req.ContentType)
	if err != nil {
		h.writeStorageError(c, err)
		return
	}
	updated, err := h.Lifecycle.AddAttachment(c.Request.Context(), complaint.ID, key)
	if err != nil {
		h.writeServiceError(c, "Failed to record attachment", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "upload_url": uploadURL, "complaint": updated})
}

func (h *Handler) writeStorageError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrDisabled) {
		writeError(c, http.StatusServiceUnavailable, "STORAGE_DISABLED", "Attachment storage is not configured", nil)
		return
	}
	h.Logger.Error().Err(err).Msg("presign failed")
	writeError(c, http.StatusBadGateway, "STORAGE_ERROR", "Failed to sign attachment URL", err.Error())
}
