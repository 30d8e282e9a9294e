package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/assistly/gatekeeper/internal/config"
	"github.com/assistly/gatekeeper/internal/model"
	"github.com/assistly/gatekeeper/internal/service"
)

// maxBodyBytes caps JSON request bodies. Every payload on this API is tiny.
const maxBodyBytes = 64 << 10

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathID extracts a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// classifyError maps service and store errors to an HTTP status and a client
// safe message. Unknown errors are reported as 500 with the fallback message.
func classifyError(err error, fallbackMsg string) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
	case errors.Is(err, service.ErrLastSuperAdmin),
		errors.Is(err, service.ErrSelfDelete),
		errors.Is(err, service.ErrTokenInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, service.ErrAdminNotFound),
		errors.Is(err, config.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, config.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusGone, err.Error()
	default:
		return http.StatusInternalServerError, fallbackMsg
	}
}

// writeServiceError classifies err and writes the error envelope.
func writeServiceError(w http.ResponseWriter, err error, fallbackMsg string) {
	status, msg := classifyError(err, fallbackMsg)
	writeError(w, status, msg)
}
