package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-tableside/internal/apperr"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/utils"
)

const maxBodyBytes = 1 << 20

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindOverpayment:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidToken:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, utils.SuccessResponse(message, data))
}

func (h *Handler) created(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusCreated, utils.SuccessResponse(message, data))
}

// fail maps a service error onto the response envelope. Internal failures are logged and
// never leak their message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		msg = "internal server error"
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}
	writeJSON(w, status, utils.ErrorResponse(string(kind), msg))
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	h.fail(w, r, apperr.InvalidInput("api", format, args...))
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("api.decode", "request body is empty")
		}
		return apperr.InvalidInput("api.decode", "invalid request body: %v", err)
	}
	return nil
}

// callerOf returns the authenticated staff member; the auth middleware guarantees presence.
func callerOf(r *http.Request) (auth.Caller, error) {
	c, ok := auth.CallerFrom(r.Context())
	if !ok {
		return auth.Caller{}, apperr.InvalidToken("api", "missing caller")
	}
	return c, nil
}
