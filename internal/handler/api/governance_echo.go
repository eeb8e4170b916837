package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	"github.com/duke524-dev/synth-subnet/internal/services/governance"
	"github.com/duke524-dev/synth-subnet/internal/usecase"
	xhttp "github.com/duke524-dev/synth-subnet/pkg/http"
	xlogger "github.com/duke524-dev/synth-subnet/pkg/logger"
)

// GovernanceEchoHandler serves parameter governance: eligibility checks,
// proposals, current values, and diagnostics-driven suggestions.
type GovernanceEchoHandler struct {
	logger    *xlogger.Logger
	engine    *governance.Engine
	scheduler *usecase.TuningScheduler
}

func NewGovernanceEchoHandler(logger *xlogger.Logger, engine *governance.Engine, scheduler *usecase.TuningScheduler) *GovernanceEchoHandler {
	return &GovernanceEchoHandler{logger: logger, engine: engine, scheduler: scheduler}
}

func (h *GovernanceEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/governance")
	g.GET("/eligibility", h.Eligibility)
	g.POST("/propose", h.Propose)
	g.GET("/values", h.Values)
	g.GET("/suggestions", h.Suggestions)
}

func (h *GovernanceEchoHandler) Eligibility(c echo.Context) error {
	req := &models.EligibilityAPIRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	status := h.engine.Status(req.Asset, req.Parameter, time.Now().UTC())
	return xhttp.SuccessResponse(c, status)
}

func (h *GovernanceEchoHandler) Propose(c echo.Context) error {
	req := &models.ProposeAPIRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	msg, err := h.engine.ProposeChange(req.Asset, req.Parameter, req.NewValue, req.Reason, time.Now().UTC())
	if err != nil {
		if errors.Is(err, governance.ErrGovernanceRejected) {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Error("proposal failed",
			xlogger.String("asset", req.Asset),
			xlogger.String("parameter", req.Parameter),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	return xhttp.CreatedResponse(c, map[string]interface{}{
		"asset":     req.Asset,
		"parameter": req.Parameter,
		"new_value": req.NewValue,
		"message":   msg,
	})
}

func (h *GovernanceEchoHandler) Values(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.CurrentValues())
}

func (h *GovernanceEchoHandler) Suggestions(c echo.Context) error {
	suggestions := h.scheduler.Suggestions()
	total := int64(len(suggestions))
	if limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0); limit > 0 && limit < len(suggestions) {
		suggestions = suggestions[:limit]
	}
	return xhttp.ListResponse(c, suggestions, total)
}
