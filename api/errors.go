package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"sales-portal/domain"
	"sales-portal/workflow"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Step      string `json:"step,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func statusForKind(k domain.ErrorKind) int {
	switch k {
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTransition, domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code and a short user-facing message.
func writeError(c echo.Context, logger *log.Logger, stage string, err error) error {
	kind := domain.Kind(err)
	status := statusForKind(kind)
	setErrorStage(c, stage)

	resp := errorResponse{
		Error:     domain.UserMessage(err),
		Kind:      string(kind),
		Retryable: domain.Retryable(err),
	}
	var stepErr *workflow.StepError
	if errors.As(err, &stepErr) {
		resp.Step = stepErr.Step
	}

	if status >= http.StatusInternalServerError && logger != nil {
		logger.WithError(err).WithFields(log.Fields{
			"route": c.Path(),
			"stage": stage,
		}).Error("request failed")
	}
	return c.JSON(status, resp)
}
