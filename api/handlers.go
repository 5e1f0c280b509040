// Package api exposes the sales portal over HTTP.
package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"sales-portal/domain"
	"sales-portal/workflow"
)

const maxJSONBody = 1 << 20

// Deps are the services the handlers call. Completion and Deduper may be nil.
type Deps struct {
	Customers       CustomerService
	Tasks           TaskService
	Representatives RepresentativeService
	Completion      workflow.Generator
	Workflow        *workflow.Service
	Drafts          workflow.DraftStore
	Auth            Authenticator
	Internal        SecretGate
	Deduper         Deduper
	MaxUploadBytes  int64
}

type handlers struct {
	Deps
	log *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps, logger *log.Logger) {
	if logger == nil {
		logger = log.New()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 8 << 20
	}
	h := &handlers{Deps: deps, log: logger}

	e.GET("/healthz", h.healthz)

	g := e.Group("/api", requireAuth(deps.Auth))
	admin := requireAdmin

	g.GET("/customers", h.listCustomers, admin)
	g.GET("/customers/files", h.listFiles, admin)
	g.GET("/customers/categories", h.listCategories, admin)
	g.POST("/customers/import", h.importCustomers, admin)
	g.DELETE("/customers/files/:filename", h.purgeFile, admin)
	g.POST("/csv/lookup", h.lookupCSV, admin)

	g.GET("/tasks", h.listTasks)
	g.GET("/tasks/:id", h.getTask)
	g.PUT("/tasks/:id/status", h.updateStatus)
	g.POST("/tasks", h.createTask, admin)
	g.PUT("/tasks/:id/members", h.assignMembers, admin)

	g.POST("/completions/script", h.generateScript, admin)
	g.POST("/completions/keywords", h.generateKeywords, admin)

	g.GET("/representatives", h.listRepresentatives, admin)

	g.GET("/workflow", h.getDraft, admin)
	g.DELETE("/workflow", h.resetDraft, admin)
	g.GET("/workflow/categories", h.workflowCategories, admin)
	g.POST("/workflow/category", h.selectCategory, admin)
	g.POST("/workflow/customers", h.selectCustomers, admin)
	g.POST("/workflow/content", h.editContent, admin)
	g.POST("/workflow/generate", h.generate, admin)
	g.POST("/workflow/representatives", h.assignRepresentatives, admin)
	g.POST("/workflow/edit", h.loadTask, admin)
	g.POST("/workflow/submit", h.submit, admin)

	internal := e.Group("/internal", requireSecret(deps.Internal))
	internal.PUT("/representatives", h.upsertRepresentative)
}

func (h *handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxJSONBody)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid body: %v", domain.ErrValidation, err)
	}
	return nil
}
