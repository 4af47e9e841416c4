package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/near-pulse/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents bad account identifiers and similar (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryValidation represents invalid parameters
	CategoryValidation ErrorCategory = "validation"
	// CategorySourceUnavailable represents an upstream collaborator that failed or timed out
	CategorySourceUnavailable ErrorCategory = "source_unavailable"
	// CategoryMalformedRecord represents an upstream record missing expected fields
	CategoryMalformedRecord ErrorCategory = "malformed_record"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategorySystem represents internal errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryRateLimit represents inbound or upstream throttling
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryNotFound represents unknown routes or resources
	CategoryNotFound ErrorCategory = "not_found"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidAccountError creates an invalid account identifier error
func NewInvalidAccountError(account string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ACCOUNT",
		Message:    fmt.Sprintf("invalid account id %q: %s", account, reason),
		Details: map[string]interface{}{
			"account": account,
			"reason":  reason,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates an inbound rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewSourceUnavailableError creates an upstream failure error
func NewSourceUnavailableError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySourceUnavailable,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_UNAVAILABLE",
		Message:    fmt.Sprintf("upstream source unavailable: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewSourceTimeoutError creates an upstream timeout error
func NewSourceTimeoutError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySourceUnavailable,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "SOURCE_TIMEOUT",
		Message:    fmt.Sprintf("upstream source timeout: %s", source),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewSourceRateLimitError creates an upstream throttling error
func NewSourceRateLimitError(source string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySourceUnavailable,
		StatusCode: http.StatusTooManyRequests,
		Code:       "SOURCE_RATE_LIMIT",
		Message:    fmt.Sprintf("upstream source rate limit exceeded: %s", source),
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewMalformedRecordError reports one upstream record that could not be used
func NewMalformedRecordError(source string, key string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMalformedRecord,
		StatusCode: http.StatusBadGateway,
		Code:       "MALFORMED_RECORD",
		Message:    fmt.Sprintf("malformed record from %s: %s", source, reason),
		Details: map[string]interface{}{
			"source": source,
			"key":    key,
			"reason": reason,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewSourceTimeoutError("unknown", err)
	}

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case "INVALID_ACCOUNT":
		category, status = CategoryUserInput, http.StatusBadRequest
	case "INVALID_PARAMETER":
		category, status = CategoryValidation, http.StatusBadRequest
	case "NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case "RATE_LIMIT_EXCEEDED":
		category, status = CategoryRateLimit, http.StatusTooManyRequests
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is worth retrying against the same source
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategorySourceUnavailable, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsMalformed reports whether err describes an unusable upstream record
func IsMalformed(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryMalformedRecord
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 500
}
