package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/billfold/internal/invoice/domain"
	"github.com/smallbiznis/billfold/internal/webhook"
)

// ValidationError describes a single invalid request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates field-level failures into one response.
type ValidationErrors struct {
	Errors []ValidationError
}

func (e *ValidationErrors) Error() string {
	return "validation_failed"
}

func newValidationError(field, message string) *ValidationErrors {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Message: message}}}
}

// ErrUnauthorized rejects requests with a missing or wrong API token.
var ErrUnauthorized = errors.New("unauthorized")

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// AbortWithError records err on the context for the error handling
// middleware to translate into a response.
func AbortWithError(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}

// ErrorHandlingMiddleware renders the last recorded error as a JSON
// envelope once the handler chain has finished.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastErr := c.Errors.Last()
		if lastErr == nil || c.Writer.Written() {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.JSON(status, errorResponse{Error: payload})
	}
}

func mapError(err error) (int, errorPayload) {
	var verrs *ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "request validation failed",
			Errors:  verrs.Errors,
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "missing or invalid API token",
		}
	case errors.Is(err, webhook.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, invoicedomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, invoicedomain.ErrAlreadyFinalized):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "document is already finalized",
		}
	case errors.Is(err, invoicedomain.ErrSequenceExhausted):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "sequence_exhausted",
			Message: "could not allocate a number, retry later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog labels handler errors for the request log without
// leaking message contents.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	default:
		return "client_error", payload.Type
	}
}
