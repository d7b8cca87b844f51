package httpx

import (
	"errors"
	"net/http"

	"github.com/aegis-desktop/aegis/internal/shared"
)

// RespondError maps the security failure taxonomy to HTTP responses using
// RFC7807. Internal faults never leak details to the caller.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAuthenticationFailed):
		Problem(w, http.StatusUnauthorized, "Authentication Failed", err.Error())
	case errors.Is(err, shared.ErrAuthorizationDenied):
		Problem(w, http.StatusForbidden, "Authorization Denied", err.Error())
	case errors.Is(err, shared.ErrRateLimited):
		Problem(w, http.StatusTooManyRequests, "Rate Limited", err.Error())
	case errors.Is(err, shared.ErrValidationFailed):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrAttackSuspected):
		Problem(w, http.StatusBadRequest, "Request Rejected", err.Error())
	case errors.Is(err, shared.ErrElevationFailed):
		Problem(w, http.StatusForbidden, "Elevation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
