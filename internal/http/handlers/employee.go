package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bankline/complaints/internal/models"
	"github.com/bankline/complaints/internal/storage"
)

// @Summary Complaints assigned to the calling employee
// @Tags employee
// @Produce json
// @Param status query string false "Status filter (open, assigned, in_progress, closed, escalated, all)"
// @Success 200 {object} map[string]any
// @Router /api/employee/complaints [get]
func (h *Handler) EmployeeComplaints(c *gin.Context) {
	status := c.DefaultQuery("status", "all")
	items, err := h.Lifecycle.ListForEmployee(c.Request.Context(), principal(c).ID, status)
	if err != nil {
		h.writeServiceError(c, "Failed to list complaints", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "status": status})
}

// @Summary Find a complaint by reference number
// @Tags employee
// @Produce json
// @Param ref path string true "Reference number"
// @Success 200 {object} map[string]any
// @Router /api/references/{ref} [get]
func (h *Handler) ComplaintByReference(c *gin.Context) {
	complaint, err := h.Lifecycle.GetByReference(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.writeServiceError(c, "Complaint not found", err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

type AssignRequest struct {
	EmployeeID *int64  `json:"employee_id" validate:"omitempty,gt=0"`
	Remarks    *string `json:"remarks" validate:"omitempty,max=1000"`
}

// @Summary Assign a complaint
// @Description Without employee_id the least loaded available employee is chosen
// @Tags employee
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body AssignRequest false "Target employee"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id}/assign [post]
func (h *Handler) Assign(c *gin.Context) {
	var req AssignRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	res, err := h.Assigner.AssignComplaint(c.Request.Context(), c.Param("id"), req.EmployeeID, req.Remarks)
	if err != nil {
		h.writeServiceError(c, "Failed to assign complaint", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": res.Complaint, "assignment": res.Assignment, "previous": res.Previous, "unchanged": res.Unchanged})
}

type ReassignRequest struct {
	EmployeeID int64   `json:"employee_id" validate:"required,gt=0"`
	Remarks    *string `json:"remarks" validate:"omitempty,max=1000"`
}

// @Summary Reassign a complaint
// @Tags employee
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body ReassignRequest true "New employee"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id}/reassign [post]
func (h *Handler) Reassign(c *gin.Context) {
	var req ReassignRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Assigner.ReassignComplaint(c.Request.Context(), c.Param("id"), req.EmployeeID, req.Remarks)
	if err != nil {
		h.writeServiceError(c, "Failed to reassign complaint", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": res.Complaint, "assignment": res.Assignment, "previous": res.Previous, "unchanged": res.Unchanged})
}

type StatusRequest struct {
	Status            string  `json:"status" validate:"required,oneof=open assigned in_progress closed escalated"`
	ResolutionRemarks *string `json:"resolution_remarks" validate:"omitempty,max=4000"`
}

// @Summary Change complaint status
// @Tags employee
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body StatusRequest true "New status"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	complaint, err := h.Lifecycle.UpdateStatus(c.Request.Context(), c.Param("id"), models.Status(req.Status), req.ResolutionRemarks)
	if err != nil {
		h.writeServiceError(c, "Failed to update status", err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

type CategoryRequest struct {
	Category    *string `json:"category"`
	SubCategory *string `json:"sub_category" validate:"omitempty,max=200"`
}

// @Summary Change complaint category
// @Tags employee
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param body body CategoryRequest true "Category"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id}/category [patch]
func (h *Handler) UpdateCategory(c *gin.Context) {
	var req CategoryRequest
	if !h.bind(c, &req) {
		return
	}
	complaint, err := h.Lifecycle.UpdateCategory(c.Request.Context(), c.Param("id"), req.Category, req.SubCategory)
	if err != nil {
		h.writeServiceError(c, "Failed to update category", err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func (h *Handler) Assignments(c *gin.Context) {
	items, err := h.Assigner.ListAssignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Failed to list assignments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Presigned download URL for an attachment
// @Tags attachments
// @Produce json
// @Param id path string true "Complaint ID"
// @Param key query string true "Object key"
// @Success 200 {object} map[string]any
// @Router /api/complaints/{id}/attachments/url [get]
func (h *Handler) AttachmentURL(c *gin.Context) {
	complaint, ok := h.loadVisible(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.Query("key"))
	if !storage.OwnsKey(complaint.ID, key) || !slices.Contains(models.SplitAttachments(complaint.Fields.AttachmentURLs), key) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Attachment not found", nil)
		return
	}
	url, err := h.Storage.DownloadURL(c.Request.Context(), key)
	if err != nil {
		h.writeStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "url": url})
}
