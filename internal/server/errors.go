package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Unavailability wins over validation: a batch that could not reach
	// the store is worth retrying.
	if errors.Is(err, pkgdb.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "storage_unavailable",
			Message: "storage unavailable",
		}
	}

	var batchErr *eventdomain.BatchError
	if errors.As(err, &batchErr) && isValidationError(batchErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  batchValidationErrors(batchErr),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, meteringdomain.ErrMetaQueryUnsupported):
		return http.StatusNotImplemented, errorPayload{
			Type:    "not_implemented",
			Message: "metadata queries are not supported",
		}
	case errors.Is(err, meteringdomain.ErrMetadataDecode),
		errors.Is(err, eventdomain.ErrCorruptTrait):
		return http.StatusInternalServerError, errorPayload{
			Type:    "data_integrity_error",
			Message: "stored data could not be decoded",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "timeout",
			Message: "request timed out",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrs = []error{
	ErrInvalidRequest,
	eventdomain.ErrInvalidEventName,
	eventdomain.ErrInvalidTraitName,
	eventdomain.ErrInvalidTraitType,
	eventdomain.ErrInvalidTimestamp,
	eventdomain.ErrTypeMismatch,
	eventdomain.ErrInvalidRange,
	uniquenamedomain.ErrInvalidKey,
	meteringdomain.ErrInvalidCounterName,
	meteringdomain.ErrInvalidResource,
	meteringdomain.ErrInvalidRange,
	errInvalidTime,
}

func isValidationError(err error) bool {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validationErrorCode(err error) string {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	switch code {
	case eventdomain.ErrInvalidEventName.Error():
		return "event_name"
	case eventdomain.ErrInvalidTraitName.Error(), uniquenamedomain.ErrInvalidKey.Error():
		return "name"
	case eventdomain.ErrInvalidTraitType.Error(), eventdomain.ErrTypeMismatch.Error():
		return "traits"
	case eventdomain.ErrInvalidTimestamp.Error():
		return "generated"
	case meteringdomain.ErrInvalidCounterName.Error():
		return "counter_name"
	case meteringdomain.ErrInvalidResource.Error():
		return "resource_id"
	case eventdomain.ErrInvalidRange.Error(), errInvalidTime.Error():
		return "start"
	default:
		return "request"
	}
}

func batchValidationErrors(batchErr *eventdomain.BatchError) []ValidationError {
	out := make([]ValidationError, 0, len(batchErr.Entries))
	for _, entry := range batchErr.Entries {
		field := "events"
		if entry.Index >= 0 {
			field = fmt.Sprintf("events[%d]", entry.Index)
		}
		out = append(out, ValidationError{
			Field:   field,
			Code:    validationErrorCode(entry.Err),
			Message: entry.Err.Error(),
		})
	}
	return out
}

// classifyErrorForLog returns the error type and code logged with a
// failed request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
