package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bankline/complaints/internal/models"
)

func (h *Handler) EmployeesList(c *gin.Context) {
	items, err := h.Assigner.ListEmployees(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "Failed to list employees", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type CreateEmployeeRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"omitempty,email"`
	Role           string `json:"role" validate:"omitempty,max=50"`
	Department     string `json:"department" validate:"omitempty,max=200"`
	Specialization string `json:"specialization" validate:"omitempty,max=200"`
	IsAvailable    *bool  `json:"is_available"`
	MaxLoad        int    `json:"max_load" validate:"omitempty,gt=0,lte=1000"`
}

// @Summary Register an employee
// @Tags admin
// @Accept json
// @Produce json
// @Param body body CreateEmployeeRequest true "Employee"
// @Success 201 {object} models.Employee
// @Router /api/employees [post]
func (h *Handler) CreateEmployee(c *gin.Context) {
	var req CreateEmployeeRequest
	if !h.bind(c, &req) {
		return
	}
	e := models.Employee{
		Name:           req.Name,
		Email:          req.Email,
		Role:           req.Role,
		Department:     req.Department,
		Specialization: req.Specialization,
		IsAvailable:    req.IsAvailable == nil || *req.IsAvailable,
		MaxLoad:        req.MaxLoad,
	}
	if e.Role == "" {
		e.Role = "csr"
	}
	created, err := h.Assigner.CreateEmployee(c.Request.Context(), e)
	if err != nil {
		h.writeServiceError(c, "Failed to create employee", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary Rebuild load counters from active assignments
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/employees/reconcile-loads [post]
func (h *Handler) ReconcileLoads(c *gin.Context) {
	items, err := h.Assigner.ReconcileLoads(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, "Failed to reconcile loads", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
