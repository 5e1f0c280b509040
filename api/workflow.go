package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"sales-portal/domain"
	"sales-portal/workflow"
)

type scriptRequest struct {
	CustomerDescription string `json:"customerDescription"`
	TaskInstruction     string `json:"taskInstruction"`
}

type scriptResponse struct {
	Script string `json:"script"`
}

type keywordsRequest struct {
	Script          string `json:"script"`
	TaskInstruction string `json:"taskInstruction"`
}

func (h *handlers) generateScript(c echo.Context) error {
	if h.Completion == nil {
		return writeError(c, h.log, "completion", errCompletionDisabled)
	}
	var req scriptRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	script, err := h.Completion.GenerateScript(c.Request().Context(), req.CustomerDescription, req.TaskInstruction)
	if err != nil {
		return writeError(c, h.log, "completion", err)
	}
	return c.JSON(http.StatusOK, scriptResponse{Script: script})
}

func (h *handlers) generateKeywords(c echo.Context) error {
	if h.Completion == nil {
		return writeError(c, h.log, "completion", errCompletionDisabled)
	}
	var req keywordsRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	kw, err := h.Completion.GenerateKeywords(c.Request().Context(), req.Script, req.TaskInstruction)
	if err != nil {
		return writeError(c, h.log, "completion", err)
	}
	return c.JSON(http.StatusOK, kw)
}

var errCompletionDisabled = fmt.Errorf("%w: completion service is not configured", domain.ErrUpstream)

type submitResponse struct {
	TaskID string          `json:"taskId"`
	Draft  *workflow.Draft `json:"draft"`
}

// draftStep loads the caller's draft, applies step and saves the draft when
// the step succeeds. A failed step leaves the stored draft unchanged.
func (h *handlers) draftStep(c echo.Context, step func(d *workflow.Draft) error) (*workflow.Draft, error) {
	ctx := c.Request().Context()
	userID := principal(c).UserID
	d, err := h.Drafts.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := step(d); err != nil {
		return nil, err
	}
	if err := h.Drafts.Save(ctx, userID, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (h *handlers) respondDraft(c echo.Context, d *workflow.Draft, err error) error {
	if err != nil {
		return writeError(c, h.log, "workflow", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *handlers) getDraft(c echo.Context) error {
	d, err := h.Drafts.Load(c.Request().Context(), principal(c).UserID)
	return h.respondDraft(c, d, err)
}

func (h *handlers) resetDraft(c echo.Context) error {
	if err := h.Drafts.Delete(c.Request().Context(), principal(c).UserID); err != nil {
		return writeError(c, h.log, "workflow", err)
	}
	return c.JSON(http.StatusOK, workflow.NewDraft())
}

func (h *handlers) workflowCategories(c echo.Context) error {
	cats, err := h.Workflow.Categories(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, "workflow", err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *handlers) selectCategory(c echo.Context) error {
	var req struct {
		Category string `json:"category"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		return h.Workflow.SelectCategory(c.Request().Context(), d, req.Category)
	})
	return h.respondDraft(c, d, err)
}

func (h *handlers) selectCustomers(c echo.Context) error {
	var req struct {
		IDs []string `json:"ids"`
		All bool     `json:"all"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		return h.Workflow.SelectCustomers(c.Request().Context(), d, req.IDs, req.All)
	})
	return h.respondDraft(c, d, err)
}

func (h *handlers) editContent(c echo.Context) error {
	var req workflow.ContentInput
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		return h.Workflow.EditContent(d, req)
	})
	return h.respondDraft(c, d, err)
}

func (h *handlers) generate(c echo.Context) error {
	var req struct {
		Force bool `json:"force"`
	}
	if c.Request().ContentLength != 0 {
		if err := decodeJSON(c, &req); err != nil {
			return writeError(c, h.log, "decode", err)
		}
	}
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		return h.Workflow.Generate(c.Request().Context(), d, req.Force)
	})
	return h.respondDraft(c, d, err)
}

func (h *handlers) assignRepresentatives(c echo.Context) error {
	var req struct {
		Emails []string `json:"emails"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		return h.Workflow.AssignRepresentatives(c.Request().Context(), d, req.Emails)
	})
	return h.respondDraft(c, d, err)
}

func (h *handlers) loadTask(c echo.Context) error {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		return h.Workflow.LoadTask(c.Request().Context(), d, req.TaskID)
	})
	return h.respondDraft(c, d, err)
}

func (h *handlers) submit(c echo.Context) error {
	var taskID string
	d, err := h.draftStep(c, func(d *workflow.Draft) error {
		id, err := h.Workflow.Submit(c.Request().Context(), d)
		taskID = id
		return err
	})
	if err != nil {
		return writeError(c, h.log, "workflow", err)
	}
	return c.JSON(http.StatusCreated, submitResponse{TaskID: taskID, Draft: d})
}
