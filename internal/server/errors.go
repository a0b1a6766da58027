package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/ratelimit"
	"github.com/smallbiznis/orderfeed/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
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

// errorKind maps a family of errors onto one HTTP response shape.
type errorKind struct {
	status  int
	typ     string
	message string
	errs    []error
}

var (
	validationSentinels = []error{
		ErrInvalidRequest,
		domain.ErrInvalidOwner,
		domain.ErrInvalidOrderID,
		domain.ErrTooManyIDs,
		domain.ErrEmptyIDs,
		pagination.ErrInvalidPageToken,
	}

	errorKinds = []errorKind{
		{http.StatusUnauthorized, "unauthorized", "no active session", []error{ErrUnauthorized}},
		{http.StatusNotFound, "not_found", "not found", []error{
			ErrNotFound, domain.ErrProfileNotFound, domain.ErrOrderNotFound, gorm.ErrRecordNotFound,
		}},
		{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrTooManyRequests}},
		{http.StatusConflict, "conflict", "profile is being updated", []error{ratelimit.ErrProfileBusy}},
		{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{ErrServiceUnavailable}},
	}

	internalKind = errorKind{status: http.StatusInternalServerError, typ: "internal_error", message: "internal server error"}
)

func (k errorKind) matches(err error) bool {
	for _, target := range k.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (k errorKind) payload() errorPayload {
	return errorPayload{Type: k.typ, Message: k.message}
}

// ErrorHandlingMiddleware renders the last handler error unless the
// handler already wrote a response.
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
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return internalKind.status, internalKind.payload()
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, validationPayload(vErr.Errors)
	}
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			code := sentinel.Error()
			return http.StatusBadRequest, validationPayload([]ValidationError{{
				Field:   validationField(code),
				Code:    code,
				Message: validationMessage(code),
			}})
		}
	}

	for _, kind := range errorKinds {
		if kind.matches(err) {
			return kind.status, kind.payload()
		}
	}
	return internalKind.status, internalKind.payload()
}

func validationPayload(errs []ValidationError) errorPayload {
	return errorPayload{Type: "validation_error", Message: "validation error", Errors: errs}
}

// classifyErrorForLog tags access logs with the side at fault and the
// response type.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server", payload.Type
	}
	return "client", payload.Type
}

func validationField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "too_many_ids", "empty_ids":
		return "order_ids"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "too_many_ids", "empty_ids":
		return "identifier batch size out of range"
	default:
		return "invalid value"
	}
}
