package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/portfolio-aggregator/internal/types"
)

func TestCategorize_Wrapped(t *testing.T) {
	base := NewStorageError("append ledger", fmt.Errorf("connection reset"))
	wrapped := fmt.Errorf("snapshot run: %w", base)

	cat := Categorize(wrapped)
	assert.Equal(t, CategoryStorage, cat.Category)
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestCategorize_ServiceError(t *testing.T) {
	cat := Categorize(&types.ServiceError{Code: "INVALID_DATE", Message: "bad date"})
	assert.Equal(t, CategoryValidation, cat.Category)
	assert.Equal(t, http.StatusBadRequest, cat.StatusCode)
}

func TestCategorize_Plain(t *testing.T) {
	assert.Nil(t, Categorize(nil))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(fmt.Errorf("boom")))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderRateLimitError("coingecko")))
	assert.False(t, IsRetryable(NewAdapterFailure("w1", "octav", nil)))
	assert.True(t, IsDataGap(NewMissingPriceError("FOO", nil)))
	assert.True(t, IsDataGap(NewMissingHistoryError("FOO", "binance", nil)))
	assert.False(t, IsFatal(NewMissingAssetError("FOO")))
}

func TestToServiceError(t *testing.T) {
	se := NewNotFoundError("position", "p1").ToServiceError()
	assert.Equal(t, "NOT_FOUND", se.Code)
	assert.Equal(t, "p1", se.Details["id"])
}
