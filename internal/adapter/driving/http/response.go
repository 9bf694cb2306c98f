package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it with the given status
// code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ObservationResponse is the JSON representation of one history entry.
// Balance is null for failed checks.
type ObservationResponse struct {
	ID         int64    `json:"id"`
	Balance    *float64 `json:"balance"`
	IsEstimate bool     `json:"is_estimate"`
	CheckError string   `json:"check_error,omitempty"`
	ObservedAt string   `json:"observed_at"`
}

func toObservationResponse(obs model.BalanceObservation) ObservationResponse {
	resp := ObservationResponse{
		ID:         obs.ID,
		IsEstimate: obs.IsEstimate,
		CheckError: obs.CheckError,
		ObservedAt: obs.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
	if !obs.Failed() {
		balance := obs.Balance
		resp.Balance = &balance
	}
	return resp
}

// BalanceResultResponse is the body of a successful credential test.
type BalanceResultResponse struct {
	Balance    float64 `json:"balance"`
	IsEstimate bool    `json:"is_estimate"`
}
