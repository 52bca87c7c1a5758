package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-dispatch/internal/models"
)

type inputError struct{ msg string }

func (e inputError) Error() string { return e.msg }

func badRequest(msg string) error { return inputError{msg: msg} }

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var in inputError
	switch {
	case errors.As(err, &in), errors.Is(err, models.ErrInvalidCoordinate):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNoDriversAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrRideNotFound), errors.Is(err, models.ErrDriverNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotADriver):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrDriverAtCapacity):
		return http.StatusConflict
	case errors.Is(err, models.ErrCollaborator):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		s.logger.ErrorContext(r.Context(), "dispatch_api_error", "route", routeOf(r), "request_id", requestID(r.Context()), "error", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
