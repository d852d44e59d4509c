package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/session"
	"github.com/cardlens/benefit-cli/internal/store"
)

// dataEnvelope wraps every successful response.
type dataEnvelope struct {
	Data any `json:"data"`
}

// errorEnvelope carries the taxonomy kind alongside the message so clients
// can branch without parsing text.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(dataEnvelope{Data: v}); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

// writeError maps the session error taxonomy onto HTTP status codes.
// Configuration problems are the caller's fault, wrong-phase calls conflict
// with session state, and busy sessions ask the caller to retry.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch {
	case session.IsConfigError(err):
		status = http.StatusBadRequest
		kind = "configuration_error"
	case errors.Is(err, session.ErrNotFound) || errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		kind = "not_found"
	case session.IsInvalidState(err):
		status = http.StatusConflict
		kind = "invalid_state"
	case session.IsBusy(err):
		status = http.StatusTooManyRequests
		kind = "session_busy"
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Kind:    kind,
		Message: err.Error(),
	}})
}

// decodeBody decodes a JSON body into v. An empty body leaves v at its zero
// value, so bodyless POSTs take the defaults.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, &session.ConfigError{Reason: "malformed request body: " + err.Error()})
		return false
	}
	return true
}
