package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"sales-portal/domain"
	"sales-portal/registry"
)

const headerIdempotencyKey = "Idempotency-Key"

type createTaskResponse struct {
	TaskID string `json:"taskId"`
}

type membersRequest struct {
	Members []domain.Member `json:"members"`
	Emails  []string        `json:"emails"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *handlers) listTasks(c echo.Context) error {
	ctx := c.Request().Context()
	p := principal(c)
	var (
		tasks []domain.Task
		err   error
	)
	switch {
	case !p.IsAdmin():
		tasks, err = h.Tasks.ListByRepresentative(ctx, p.DisplayName())
	case c.QueryParam("representative") != "":
		tasks, err = h.Tasks.ListByRepresentative(ctx, c.QueryParam("representative"))
	default:
		tasks, err = h.Tasks.ListAll(ctx)
	}
	if err != nil {
		return writeError(c, h.log, "storage", err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// visibleTask loads a task, hiding tasks a representative is not assigned to.
func (h *handlers) visibleTask(c echo.Context) (domain.Task, error) {
	id := c.Param("id")
	task, err := h.Tasks.Get(c.Request().Context(), id)
	if err != nil {
		return task, err
	}
	if p := principal(c); !p.IsAdmin() && !task.HasMember(p.DisplayName()) {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	return task, nil
}

func (h *handlers) getTask(c echo.Context) error {
	task, err := h.visibleTask(c)
	if err != nil {
		return writeError(c, h.log, "storage", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) createTask(c echo.Context) error {
	ctx := c.Request().Context()
	var in registry.NewTask
	if err := decodeJSON(c, &in); err != nil {
		return writeError(c, h.log, "decode", err)
	}

	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
	userID := principal(c).UserID
	if key != "" && h.Deduper != nil {
		added, err := h.Deduper.Add(ctx, userID, key)
		if err != nil {
			return writeError(c, h.log, "dedupe", fmt.Errorf("%w: idempotency check: %w", domain.ErrUpstream, err))
		}
		if !added {
			return writeError(c, h.log, "dedupe", fmt.Errorf("%w: idempotency key %q", domain.ErrConflict, key))
		}
	}

	id, err := h.Tasks.Create(ctx, in)
	if err != nil {
		if key != "" && h.Deduper != nil {
			if rerr := h.Deduper.Remove(context.WithoutCancel(ctx), userID, key); rerr != nil {
				h.log.WithError(rerr).WithField("key", key).Warn("release idempotency key")
			}
		}
		return writeError(c, h.log, "create", err)
	}
	return c.JSON(http.StatusCreated, createTaskResponse{TaskID: id})
}

func (h *handlers) assignMembers(c echo.Context) error {
	ctx := c.Request().Context()
	var req membersRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	members := req.Members
	if len(req.Emails) > 0 {
		resolved, err := h.Representatives.Members(ctx, req.Emails)
		if err != nil {
			return writeError(c, h.log, "representatives", err)
		}
		members = append(members, resolved...)
	}
	task, err := h.Tasks.Assign(ctx, c.Param("id"), members)
	if err != nil {
		return writeError(c, h.log, "assign", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) updateStatus(c echo.Context) error {
	var req statusRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return writeError(c, h.log, "decode", err)
	}
	if _, err := h.visibleTask(c); err != nil {
		return writeError(c, h.log, "storage", err)
	}
	task, err := h.Tasks.UpdateStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return writeError(c, h.log, "status", err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) listRepresentatives(c echo.Context) error {
	reps, err := h.Representatives.List(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, "storage", err)
	}
	return c.JSON(http.StatusOK, reps)
}

func (h *handlers) upsertRepresentative(c echo.Context) error {
	var rep domain.Representative
	if err := decodeJSON(c, &rep); err != nil {
		return writeError(c, h.log, "decode", err)
	}
	saved, err := h.Representatives.Upsert(c.Request().Context(), rep)
	if err != nil {
		return writeError(c, h.log, "upsert", err)
	}
	return c.JSON(http.StatusOK, saved)
}
