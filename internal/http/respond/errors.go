package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/storage"
)

// Failure maps domain errors onto status codes. Anything unrecognised is
// logged and reported as a 500 without detail.
func Failure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, storage.ErrInvalidQuery):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired):
		Error(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		Error(w, http.StatusForbidden, "insufficient role")
	case errors.Is(err, storage.ErrNotFound):
		Error(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		Error(w, http.StatusConflict, "resource already exists")
	default:
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
