// Package httphandler is the HTTP driving adapter exposing the engine
// boundary: trigger and test checks, read balance history, health, and
// metrics. Credential and rule management are deliberately not served
// here.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quotawatch/quotawatch/internal/application"
	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
	"github.com/quotawatch/quotawatch/internal/telemetry"
)

// Handler serves the engine's REST API.
type Handler struct {
	credentials driven.CredentialStore
	history     driven.HistoryStore
	checkSvc    *application.CheckService
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	credentials driven.CredentialStore,
	history driven.HistoryStore,
	checkSvc *application.CheckService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		credentials: credentials,
		history:     history,
		checkSvc:    checkSvc,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and
// wrapped with logging and recovery middleware. metrics may be nil,
// in which case /metrics is not registered.
func NewServeMux(h *Handler, metrics *telemetry.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/credentials/{id}/check", h.TriggerCheck)
	mux.HandleFunc("POST /api/v1/credentials/test", h.TestCredential)
	mux.HandleFunc("GET /api/v1/credentials/{id}/history", h.History)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// TriggerCheck requests an immediate check for a credential. The check
// runs asynchronously; 202 means accepted, 409 means one is already
// running.
func (h *Handler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	switch err := h.checkSvc.TriggerCheck(r.Context(), id); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, application.ErrCheckInFlight):
		writeError(w, http.StatusConflict, "check already in flight")
	case errors.Is(err, application.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "credential not found")
	default:
		var unsupported *model.UnsupportedProviderError
		if errors.As(err, &unsupported) {
			writeError(w, http.StatusUnprocessableEntity, unsupported.Error())
			return
		}
		h.logger.Error("trigger check failed", "credential_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// testCredentialRequest is the body of POST /api/v1/credentials/test.
// The secret arrives in plaintext and is used for exactly one provider
// call; nothing is persisted.
type testCredentialRequest struct {
	ProviderSlug string            `json:"provider_slug"`
	Secret       string            `json:"secret"`
	Metadata     map[string]string `json:"metadata"`
}

// TestCredential validates a candidate secret against its provider
// without storing anything.
func (h *Handler) TestCredential(w http.ResponseWriter, r *http.Request) {
	var req testCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProviderSlug == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "provider_slug and secret are required")
		return
	}

	result, err := h.checkSvc.TestCredential(r.Context(), req.Secret, req.ProviderSlug, req.Metadata)
	if err != nil {
		var unsupported *model.UnsupportedProviderError
		if errors.As(err, &unsupported) {
			writeError(w, http.StatusUnprocessableEntity, unsupported.Error())
			return
		}
		// The classified provider error is the answer the caller
		// asked for, not a server fault.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, BalanceResultResponse{
		Balance:    result.Balance,
		IsEstimate: result.IsEstimate,
	})
}

// History returns a credential's balance observations within an
// optional from/to window (RFC 3339), ascending.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	cred, err := h.credentials.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("load credential failed", "credential_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if cred == nil {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}

	from := time.Time{}
	to := time.Now().UTC()
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
	}

	obs, err := h.history.Range(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("history range failed", "credential_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ObservationResponse, 0, len(obs))
	for _, o := range obs {
		resp = append(resp, toObservationResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
