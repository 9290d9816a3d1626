package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.GetGlobalLogger().WithError(err).Warn("Failed to encode error response")
	}
}

// respondCategorized maps any error onto its status code and error body.
// Internal causes are logged, not returned.
func respondCategorized(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.GetGlobalLogger().WithError(err).Error("Request failed")
		respondError(w, catErr.StatusCode, ErrCodeInternalError, "An internal error occurred", nil)
		return
	}
	if catErr.Category == apperrors.CategoryRateLimit {
		if v, ok := catErr.Details["retryAfter"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(v))
		}
	}
	svc := catErr.ToServiceError()
	respondError(w, catErr.StatusCode, svc.Code, svc.Message, svc.Details)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.GetGlobalLogger().WithError(err).Warn("Failed to encode response")
		}
	}
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
