package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bankline/complaints/internal/config"
	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/http/handlers"
	"github.com/bankline/complaints/internal/http/middleware"
	"github.com/bankline/complaints/internal/models"
	"github.com/bankline/complaints/internal/service"
	"github.com/bankline/complaints/internal/storage"

	_ "github.com/bankline/complaints/docs"
)

// Deps are the wired services the HTTP surface dispatches to.
type Deps struct {
	Store     db.Database
	Lifecycle *service.Lifecycle
	Assigner  *service.Assigner
	Storage   storage.Presigner
	Logger    zerolog.Logger
}

func Router(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id",
			middleware.PrincipalIDHeader, middleware.PrincipalTypeHeader, middleware.PrincipalRoleHeader,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	presigner := deps.Storage
	if presigner == nil {
		presigner = storage.Disabled{}
	}
	h := &handlers.Handler{
		Store:          deps.Store,
		Lifecycle:      deps.Lifecycle,
		Assigner:       deps.Assigner,
		Storage:        presigner,
		Validator:      validator.New(),
		Logger:         deps.Logger,
		MaxUploadBytes: cfg.MaxUploadSizeMB << 20,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(middleware.Authenticate(cfg.JWTSecret))
	api.GET("/categories", h.Categories)

	customer := api.Group("")
	customer.Use(middleware.RequirePrincipal(models.PrincipalCustomer))
	{
		customer.POST("/complaints", h.CreateComplaint)
		customer.GET("/my/complaints", h.MyComplaints)
		customer.PATCH("/complaints/:id/fields", h.UpdateFields)
		customer.POST("/complaints/:id/turns", h.ProcessTurn)
		customer.POST("/complaints/:id/submit", h.Submit)
		customer.POST("/complaints/:id/attachments", h.CreateAttachment)
	}

	shared := api.Group("")
	shared.Use(middleware.RequirePrincipal(models.PrincipalCustomer, models.PrincipalEmployee))
	{
		shared.GET("/complaints/:id", h.ComplaintDetails)
		shared.GET("/complaints/:id/attachments/url", h.AttachmentURL)
	}

	employee := api.Group("")
	employee.Use(middleware.RequirePrincipal(models.PrincipalEmployee))
	{
		employee.GET("/employee/complaints", h.EmployeeComplaints)
		employee.GET("/references/:ref", h.ComplaintByReference)
		employee.POST("/complaints/:id/assign", h.Assign)
		employee.POST("/complaints/:id/reassign", h.Reassign)
		employee.PATCH("/complaints/:id/status", h.UpdateStatus)
		employee.PATCH("/complaints/:id/category", h.UpdateCategory)
		employee.GET("/complaints/:id/assignments", h.Assignments)
		employee.GET("/employees", h.EmployeesList)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/employees", h.CreateEmployee)
		admin.POST("/employees/reconcile-loads", h.ReconcileLoads)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
