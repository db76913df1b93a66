package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vinetrail/vinetrail-backend/logger"
)

type ErrorType string

const (
	ValidationError              ErrorType = "VALIDATION_ERROR"
	NotFoundError                ErrorType = "NOT_FOUND"
	AuthError                    ErrorType = "AUTHENTICATION_ERROR"
	ForbiddenError               ErrorType = "FORBIDDEN"
	DatabaseError                ErrorType = "DATABASE_ERROR"
	ServerError                  ErrorType = "SERVER_ERROR"
	ConflictError                ErrorType = "CONFLICT"
	InvalidStatusTransitionError ErrorType = "INVALID_STATUS_TRANSITION"
	PaymentError                 ErrorType = "PAYMENT_ERROR"
	ExtractionFailedError        ErrorType = "EXTRACTION_FAILED"
	ExternalServiceError         ErrorType = "EXTERNAL_SERVICE_ERROR"
	ServiceUnavailableError      ErrorType = "SERVICE_UNAVAILABLE"
	RateLimitError               ErrorType = "RATE_LIMIT_EXCEEDED"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`

	// Extras are added to the rendered error body as top-level keys.
	Extras map[string]interface{} `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// GetHTTPStatus returns the status to respond with.
func (e *AppError) GetHTTPStatus() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return getHTTPStatus(e.Type)
}

// WithExtra attaches a structured value to the error body.
func (e *AppError) WithExtra(key string, value interface{}) *AppError {
	if e.Extras == nil {
		e.Extras = make(map[string]interface{})
	}
	e.Extras[key] = value
	return e
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Raw
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// As returns the *AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == errType
}

// Helper functions for common errors
func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidStatusTransition reports a request that the proposal's current
// status does not allow. message is shown to the customer as-is.
func InvalidStatusTransition(current, message string) *AppError {
	return &AppError{
		Type:       InvalidStatusTransitionError,
		Code:       current,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message string, detail string) *AppError {
	return &AppError{
		Type:       ConflictError,
		Message:    message,
		Detail:     detail,
		HTTPStatus: http.StatusConflict,
	}
}

// PaymentFailed is a rejected payment request: provider not configured,
// charge not succeeded or charge metadata that names another proposal.
func PaymentFailed(code, message string) *AppError {
	return &AppError{
		Type:       PaymentError,
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ExtractionFailed is returned when the language model produced unusable
// output on every allowed attempt.
func ExtractionFailed(message string, cause error) *AppError {
	e := &AppError{
		Type:       ExtractionFailedError,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Raw:        cause,
	}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

func ExternalServiceFailed(service string, err error) *AppError {
	logger.GetLogger().Errorw("External service error", "service", service, "error", err)
	return &AppError{
		Type:       ExternalServiceError,
		Code:       service,
		Message:    fmt.Sprintf("%s request failed", service),
		Detail:     "Please try again later",
		HTTPStatus: http.StatusBadGateway,
		Raw:        err,
	}
}

func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Type:       ServiceUnavailableError,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func Unauthorized(code, message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string, details string) *AppError {
	return &AppError{
		Type:       ForbiddenError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusForbidden,
	}
}

func RateLimitExceeded(message string) *AppError {
	return &AppError{
		Type:       RateLimitError,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

func NewDatabaseError(err error) *AppError {
	// Log original error but return sanitized message
	logger.GetLogger().Errorw("Database error", "error", err)
	return &AppError{
		Type:       DatabaseError,
		Message:    "Database operation failed",
		Detail:     "Please try again later",
		HTTPStatus: http.StatusInternalServerError,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError, InvalidStatusTransitionError, PaymentError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case AuthError:
		return http.StatusUnauthorized
	case ForbiddenError:
		return http.StatusForbidden
	case ConflictError:
		return http.StatusConflict
	case ExtractionFailedError:
		return http.StatusUnprocessableEntity
	case ExternalServiceError:
		return http.StatusBadGateway
	case ServiceUnavailableError:
		return http.StatusServiceUnavailable
	case RateLimitError:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
