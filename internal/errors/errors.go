package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory groups errors for logging severity and retry decisions
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryModel       ErrorCategory = "model"
	CategoryNetwork     ErrorCategory = "network"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryInternal    ErrorCategory = "internal"
	CategoryExternalAPI ErrorCategory = "external_api"
	CategoryAuth        ErrorCategory = "auth"
)

// AppError wraps an errbuilder error with transport context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error renders the message under a stable bracketed label so log lines
// stay grep-able across categories.
func (e *AppError) Error() string {
	label := "UNKNOWN_ERROR"
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		label = "VALIDATION_ERROR"
	case errbuilder.CodeFailedPrecondition:
		label = "MODEL_ERROR"
	case errbuilder.CodeUnavailable:
		label = "NETWORK_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		label = "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		label = "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeInternal:
		label = "INTERNAL_ERROR"
	case errbuilder.CodeUnauthenticated:
		label = "AUTH_ERROR"
	}

	return "[" + label + "] " + e.ErrBuilder.Msg
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError stamps an errbuilder error with category and HTTP status
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

func withCause(builder *errbuilder.ErrBuilder, cause error) *errbuilder.ErrBuilder {
	if cause != nil {
		return builder.WithCause(cause)
	}
	return builder
}

func withDetail(builder *errbuilder.ErrBuilder, key, value string) *errbuilder.ErrBuilder {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set(key, errors.New(value))
	return builder.WithDetails(errbuilder.NewErrDetails(errorMap))
}

// NewValidationError reports a rejected request payload
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		builder = withDetail(builder, "validation_details", fmt.Sprintf("%v", details[0]))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewEmptyCorpusError signals a training request that carried no records.
// The prior model, if any, stays untouched.
func NewEmptyCorpusError() *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("Training corpus is empty")

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewModelNotLoadedError signals analysis attempted before any model exists
func NewModelNotLoadedError() *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("No anomaly model is loaded")

	return NewAppError(builder, CategoryModel, http.StatusServiceUnavailable)
}

// NewSchemaMismatchError signals a persisted model whose feature schema does
// not match the compiled-in extractor schema. Loads must reject, never adapt.
func NewSchemaMismatchError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryModel, http.StatusConflict)
}

// NewModelPersistenceError signals a failed model load or save. Fatal to the
// operation; callers never fall back to an unfitted model.
func NewModelPersistenceError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryModel, http.StatusInternalServerError)
}

// NewAuthError reports a missing or rejected credential
func NewAuthError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnauthenticated).
		WithMsg(message)

	return NewAppError(builder, CategoryAuth, http.StatusUnauthorized)
}

// NewNetworkError reports an unreachable upstream
func NewNetworkError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryNetwork, http.StatusBadGateway)
}

// NewTimeoutError reports an operation that exceeded its deadline
func NewTimeoutError(message string, cause error) *AppError {
	builder := withCause(errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message), cause)

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewRateLimitError reports an exhausted request budget
func NewRateLimitError(retryAfter string) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded"), "retry_after", retryAfter)

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewExternalAPIError reports a failure from a named upstream service
func NewExternalAPIError(apiName string, cause error) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API error", apiName)), "api_name", apiName)
	builder = withCause(builder, cause)

	return NewAppError(builder, CategoryExternalAPI, http.StatusBadGateway)
}

// NewInternalError reports an unexpected failure. The real message goes
// into the details; clients see a generic line.
func NewInternalError(message string, cause error) *AppError {
	builder := withDetail(errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error"), "internal_details", message)
	builder = withCause(builder, cause)

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler converts errors attached to the gin context into a logged,
// category-shaped JSON response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		appErr.RequestID = c.GetString("request_id")

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns panics into structured 500 responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)

		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError classifies an arbitrary error into an AppError. Existing
// AppErrors pass through unchanged, wrapped or not.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("Request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("Request deadline exceeded", err)
	}

	// Transport errors from the stdlib only surface as text
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return NewNetworkError("Network connection failed", err)
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return NewTimeoutError("Request timeout", err)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError writes err at a severity matching its category: client mistakes
// warn, flaky upstreams inform, everything else is an error.
func LogError(c *gin.Context, err *AppError) {
	requestID := err.RequestID
	if requestID == "" {
		requestID = c.GetHeader("X-Request-ID")
	}

	entry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", requestID,
	)

	msg := err.ErrBuilder.Msg
	details := err.ErrBuilder.Details

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryAuth:
		if len(details.Errors) > 0 {
			entry.Warn(msg, "details", details.Errors)
		} else {
			entry.Warn(msg)
		}
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			entry.Info(msg, "cause", cause)
		} else {
			entry.Info(msg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			entry.Error(msg, "cause", cause)
		} else {
			entry.Error(msg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		entry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether a retry could plausibly succeed
func IsRetryableError(err error) bool {
	switch ToAppError(err).Category {
	case CategoryNetwork, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	}
	return false
}

// GetRetryDelay scales the wait before the next attempt by error category.
// Rate limits back off hardest; unknown errors get a short linear delay.
func GetRetryDelay(err error, attempt int) time.Duration {
	base := time.Duration(100*attempt) * time.Millisecond

	switch ToAppError(err).Category {
	case CategoryRateLimit:
		return time.Duration(attempt*attempt) * time.Second
	case CategoryNetwork, CategoryTimeout:
		return base * time.Duration(1<<attempt)
	case CategoryExternalAPI:
		return base * time.Duration(attempt)
	default:
		return base
	}
}

// WrapError prefixes err with formatted context, preserving the chain
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}

// SafeClose closes a resource, downgrading failures to a warning
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource",
			"resource", resourceName,
			"error", err)
	}
}
