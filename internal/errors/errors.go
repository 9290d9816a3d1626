package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/portfolio-aggregator/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryDataGap covers missing prices, history or asset metadata; the run continues
	CategoryDataGap ErrorCategory = "data_gap"
	// CategoryAdapter covers a single wallet provider failing or returning garbage
	CategoryAdapter ErrorCategory = "adapter"
	// CategoryArithmetic covers guard conditions on numeric inputs
	CategoryArithmetic ErrorCategory = "arithmetic"
	// CategoryStorage covers snapshot and ledger I/O; fatal for a run
	CategoryStorage ErrorCategory = "storage"
	// CategoryValidation represents bad API input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents local or upstream rate limiting
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents anything uncategorized
	CategorySystem ErrorCategory = "system"
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

// ToServiceError converts to the API error body
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Data gaps

// NewMissingPriceError reports a symbol no price source could price
func NewMissingPriceError(symbol string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDataGap,
		StatusCode: http.StatusNotFound,
		Code:       "MISSING_PRICE",
		Message:    fmt.Sprintf("no price available for %s", symbol),
		Cause:      cause,
		Details:    map[string]interface{}{"symbol": symbol},
	}
}

// NewMissingHistoryError reports a base asset with no usable price history
func NewMissingHistoryError(symbol string, source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDataGap,
		StatusCode: http.StatusNotFound,
		Code:       "MISSING_HISTORY",
		Message:    fmt.Sprintf("no price history for %s from %s", symbol, source),
		Cause:      cause,
		Details: map[string]interface{}{
			"symbol": symbol,
			"source": source,
		},
	}
}

// NewMissingAssetError reports a symbol absent from the asset reference table
func NewMissingAssetError(symbol string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDataGap,
		StatusCode: http.StatusNotFound,
		Code:       "MISSING_ASSET_METADATA",
		Message:    fmt.Sprintf("asset metadata missing for %s", symbol),
		Details:    map[string]interface{}{"symbol": symbol},
	}
}

// Adapters

// NewAdapterFailure wraps a provider failure for one wallet
func NewAdapterFailure(walletID string, provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAdapter,
		StatusCode: http.StatusBadGateway,
		Code:       "ADAPTER_ERROR",
		Message:    fmt.Sprintf("%s adapter failed for wallet %s", provider, walletID),
		Cause:      cause,
		Details: map[string]interface{}{
			"walletId": walletID,
			"provider": provider,
		},
	}
}

// NewMalformedResponseError reports an upstream payload missing required fields
func NewMalformedResponseError(provider string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAdapter,
		StatusCode: http.StatusBadGateway,
		Code:       "MALFORMED_RESPONSE",
		Message:    fmt.Sprintf("malformed %s response: %s", provider, reason),
		Details: map[string]interface{}{
			"provider": provider,
			"reason":   reason,
		},
	}
}

// NewProviderRateLimitError reports an upstream HTTP 429
func NewProviderRateLimitError(provider string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "PROVIDER_RATE_LIMIT",
		Message:    fmt.Sprintf("data provider rate limit exceeded: %s", provider),
		Details:    map[string]interface{}{"provider": provider},
	}
}

// Arithmetic guards

// NewArithmeticError reports an input that would make a computation undefined
func NewArithmeticError(operation string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryArithmetic,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "ARITHMETIC_GUARD",
		Message:    fmt.Sprintf("%s: %s", operation, reason),
		Details: map[string]interface{}{
			"operation": operation,
			"reason":    reason,
		},
	}
}

// Storage

// NewStorageError wraps snapshot or ledger I/O
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStorage,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORAGE_ERROR",
		Message:    fmt.Sprintf("storage error during %s", operation),
		Cause:      cause,
		Details:    map[string]interface{}{"operation": operation},
	}
}

// API

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

// NewRateLimitError creates a rate limit error for API clients
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details:    map[string]interface{}{"retryAfter": retryAfter},
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

// Categorize finds the CategorizedError in err's chain, converting
// ServiceErrors and defaulting to an internal error
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

	return NewInternalError("unexpected error", err)
}

func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	out := &CategorizedError{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}
	switch err.Code {
	case "INVALID_PARAMETER", "INVALID_DATE":
		out.Category, out.StatusCode = CategoryValidation, http.StatusBadRequest
	case "NOT_FOUND", "POSITION_NOT_FOUND", "SNAPSHOT_NOT_FOUND":
		out.Category, out.StatusCode = CategoryNotFound, http.StatusNotFound
	case "RATE_LIMIT_EXCEEDED":
		out.Category, out.StatusCode = CategoryRateLimit, http.StatusTooManyRequests
	default:
		out.Category, out.StatusCode = CategorySystem, http.StatusInternalServerError
	}
	return out
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether an operation failing with err may succeed if repeated.
// Only upstream rate limiting qualifies; other provider failures are terminal.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryRateLimit
}

// IsFatal reports whether err must abort a snapshot run
func IsFatal(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryStorage
}

// IsDataGap reports whether err is a tolerated data gap
func IsDataGap(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryDataGap
}
