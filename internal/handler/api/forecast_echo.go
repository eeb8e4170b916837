package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
	icache "github.com/duke524-dev/synth-subnet/internal/service/cache"
	"github.com/duke524-dev/synth-subnet/internal/service/metrics"
	"github.com/duke524-dev/synth-subnet/internal/service/ratelimit"
	"github.com/duke524-dev/synth-subnet/internal/services/volatility"
	"github.com/duke524-dev/synth-subnet/internal/usecase"
	xhttp "github.com/duke524-dev/synth-subnet/pkg/http"
	xlogger "github.com/duke524-dev/synth-subnet/pkg/logger"
)

const diagnosticsCacheTTL = 30 * time.Second

// ForecastEchoHandler serves the forecast, diagnostics, and state endpoints.
type ForecastEchoHandler struct {
	logger     *xlogger.Logger
	forecaster *usecase.Forecaster
	store      *volatility.Store
	scheduler  *usecase.TuningScheduler
	cache      icache.BytesCache
	rl         *ratelimit.Limiter
}

func NewForecastEchoHandler(logger *xlogger.Logger, forecaster *usecase.Forecaster, store *volatility.Store, scheduler *usecase.TuningScheduler) *ForecastEchoHandler {
	metrics.Register()
	return &ForecastEchoHandler{
		logger:     logger,
		forecaster: forecaster,
		store:      store,
		scheduler:  scheduler,
		rl:         ratelimit.New(),
	}
}

// SetCache injects an optional response cache for the diagnostics endpoint.
func (h *ForecastEchoHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/forecast", h.Forecast)
	g.GET("/diagnostics", h.Diagnostics)
	g.GET("/state", h.State)
}

func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("forecast").Observe(time.Since(start).Seconds()) }()

	req := &models.ForecastAPIRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":forecast", 10, 5) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many forecast requests", 429))
	}

	var t0 time.Time
	if req.StartTime != "" {
		parsed, ok := xhttp.ParseTime(req.StartTime)
		if !ok {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestError("start_time must be RFC3339 or unix seconds"))
		}
		t0 = parsed.UTC()
	}

	ens, err := h.forecaster.Forecast(c.Request().Context(), usecase.ForecastRequest{
		Asset:         req.Asset,
		T0:            t0,
		TimeIncrement: req.TimeIncrement,
		TimeLength:    req.TimeLength,
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues("forecast").Inc()
		if errors.Is(err, usecase.ErrRequestTooLate) {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REQUEST_TOO_LATE", "start_time", err.Error(), 422))
		}
		h.logger.Error("forecast usecase error", xlogger.String("asset", req.Asset), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	gridTimes := make([]string, ens.StepCount)
	for k := range gridTimes {
		gridTimes[k] = ens.GridTime(k).Format(time.RFC3339)
	}
	return xhttp.SuccessResponse(c, &models.ForecastAPIResponse{
		Asset:         ens.Asset,
		StartTime:     ens.T0.Format(time.RFC3339),
		TimeIncrement: req.TimeIncrement,
		StepCount:     ens.StepCount,
		StartPrice:    ens.StartPrice,
		Flattened:     ens.Flattened,
		GridTimes:     gridTimes,
		Paths:         ens.Paths,
	})
}

func (h *ForecastEchoHandler) Diagnostics(c echo.Context) error {
	const cacheKey = "diagnostics:last"
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
			var report models.DiagnosticsReport
			if json.Unmarshal(b, &report) == nil {
				return xhttp.SuccessResponse(c, &report)
			}
		}
	}

	report := h.scheduler.LastReport()
	if report == nil {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundError("no diagnostics report generated yet"))
	}
	if h.cache != nil {
		if b, err := json.Marshal(report); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, diagnosticsCacheTTL); err != nil {
				h.logger.Warn("diagnostics cache set failed", xlogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *ForecastEchoHandler) State(c echo.Context) error {
	states := h.store.All()
	out := make(map[string]interface{}, len(states))
	for asset, st := range states {
		out[asset] = map[string]interface{}{
			"sigma2_1m":    st.Sigma2OneMin,
			"last_close":   st.LastClose,
			"last_update":  st.LastUpdateTS.Format(time.RFC3339),
			"lambda":       st.Lambda,
			"sample_count": st.SampleCount,
		}
	}
	return xhttp.SuccessResponse(c, out)
}
