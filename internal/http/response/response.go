// Package response shapes the pipeline's JSON replies. Failures carry an
// operation-specific code plus a kind derived from the service sentinels so
// clients can branch without parsing messages.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
)

// Kind buckets a failure by the sentinel that caused it.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes an error envelope with an explicit status.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			Kind:    kindForStatus(status),
		},
	})
}

// RespondFromError maps the service sentinels onto HTTP statuses: not-found
// to 404, invalid-argument to 400, conflict to 409, anything else to 500.
func RespondFromError(c *gin.Context, code string, err error) {
	RespondError(c, statusForError(err), code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindInvalidRequest
	case http.StatusConflict:
		return KindConflict
	default:
		return KindInternal
	}
}
