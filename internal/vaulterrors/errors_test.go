package vaulterrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "embedding dimension mismatch", nil)
	assert.Equal(t, CategoryVectorStore, err.Category)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Retryable)
}

func TestNewMarksRetryableCodesRetryable(t *testing.T) {
	err := New(ErrCodeModelDownload, "download failed", nil)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityWarning, err.Severity)
}

func TestFatalCodesAreFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeRegistryCorrupt, "corrupt registry", nil)))
	assert.False(t, IsFatal(New(ErrCodeConfigInvalid, "bad config", nil)))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(ErrCodeDiskFull, cause)
	require.NotNil(t, wrapped)
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(ErrCodeRegistryCorrupt, "", nil)
	wrapped := &VaultError{Code: ErrCodeRegistryCorrupt}
	assert.ErrorIs(t, wrapped, sentinel)
}

func TestWithDetailAndSuggestionChain(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad weights", nil).
		WithDetail("bm25_weight", "0.6").
		WithSuggestion("weights must sum to 1.0")
	assert.Equal(t, "0.6", err.Details["bm25_weight"])
	assert.Equal(t, "weights must sum to 1.0", err.Suggestion)
}

func TestGetCodeAndCategoryOnNonVaultError(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, "", GetCode(plain))
	assert.Equal(t, Category(""), GetCategory(plain))
}
