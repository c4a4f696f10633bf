// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/atelier-erp/atelier/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Forbidden is checked first because a path/body mismatch is also an invalid argument.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidArgument):
		Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
	case errors.Is(err, shared.ErrConflict):
		w.Header().Set("Retry-After", "1")
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		Problem(w, http.StatusConflict, "Already Exists", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// IsServerError reports whether err will be rendered as a 5xx.
func IsServerError(err error) bool {
	for _, known := range []error{
		shared.ErrForbidden, shared.ErrUnauthorized, shared.ErrNotFound,
		shared.ErrInvalidArgument, shared.ErrConflict, shared.ErrAlreadyExists,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}
