package adapters

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/infrastructure"
	"github.com/architeacher/svc-event-bus/internal/usecases"
	"github.com/architeacher/svc-event-bus/internal/usecases/queries"
)

type (
	// OpsHandler serves the health endpoints of the ops server.
	OpsHandler struct {
		app     *usecases.OpsApplication
		version string
		logger  infrastructure.Logger
	}

	readinessResponse struct {
		Status    domain.ReadinessResponseStatus `json:"status"`
		Timestamp time.Time                      `json:"timestamp"`
		Version   string                         `json:"version"`
		Checks    readinessChecks                `json:"checks"`
	}

	readinessChecks struct {
		Storage domain.DependencyStatus `json:"storage"`
		Cache   domain.DependencyStatus `json:"cache"`
		Queue   domain.DependencyStatus `json:"queue"`
	}

	livenessResponse struct {
		Status    domain.LivenessResponseStatus `json:"status"`
		Timestamp time.Time                     `json:"timestamp"`
		Version   string                        `json:"version"`
		Uptime    float32                       `json:"uptime_seconds"`
	}

	errorResponse struct {
		Error      string    `json:"error"`
		Message    string    `json:"message"`
		StatusCode int       `json:"status_code"`
		Timestamp  time.Time `json:"timestamp"`
	}
)

func NewOpsHandler(app *usecases.OpsApplication, version string, logger infrastructure.Logger) *OpsHandler {
	return &OpsHandler{
		app:     app,
		version: version,
		logger:  logger,
	}
}

// ReadinessCheck answers 503 unless every required dependency is reachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Queries.FetchReadinessReportQueryHandler.Execute(r.Context(), queries.FetchReadinessReportQuery{})
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, "internal_server_error", "failed to check readiness")

		return
	}

	statusCode := http.StatusOK
	if result.OverallStatus == domain.ReadinessResponseStatusNotReady {
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSON(w, statusCode, readinessResponse{
		Status:    result.OverallStatus,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Checks: readinessChecks{
			Storage: result.Storage,
			Cache:   result.Cache,
			Queue:   result.Queue,
		},
	})
}

func (h *OpsHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Queries.FetchLivenessReportQueryHandler.Execute(r.Context(), queries.FetchLivenessReportQuery{})
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, "internal_server_error", "failed to check liveness")

		return
	}

	statusCode := http.StatusOK
	if result.OverallStatus == domain.LivenessResponseStatusDead {
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSON(w, statusCode, livenessResponse{
		Status:    result.OverallStatus,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    result.Uptime,
	})
}

func (h *OpsHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, errorType, message string) {
	h.writeJSON(w, statusCode, errorResponse{
		Error:      errorType,
		Message:    message,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *OpsHandler) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("failed to write ops response")
	}
}
