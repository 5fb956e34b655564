package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeSourceUnavailable, CategoryIO},
		{ErrCodeEmbeddingUnavailable, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeUnauthorized, CategoryAuth},
		{ErrCodeForbidden, CategoryAuth},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_RetryableCodes(t *testing.T) {
	assert.True(t, New(ErrCodeEmbeddingTimeout, "t", nil).Retryable)
	assert.True(t, New(ErrCodeEmbeddingUnavailable, "t", nil).Retryable)
	assert.True(t, New(ErrCodeSourceUnavailable, "t", nil).Retryable)
	assert.False(t, New(ErrCodeInvalidInput, "t", nil).Retryable)
	assert.False(t, New(ErrCodeForbidden, "t", nil).Retryable)
}

func TestIsFatal_DesyncIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeIndexDesync, "postings missing doc", nil)))
	assert.True(t, IsFatal(New(ErrCodeCorruptIndex, "bad graph", nil)))
	assert.False(t, IsFatal(New(ErrCodeEmbeddingTimeout, "slow", nil)))
	assert.False(t, IsFatal(stderrors.New("plain")))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeEmbeddingUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := Unauthorized("missing key")
	b := Unauthorized("bad key")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, Forbidden("nope")))
}

func TestWithDetail_Chains(t *testing.T) {
	err := ValidationError("missing vector and text", nil).
		WithDetail("namespace", "agent-1").
		WithDetail("field", "query")

	assert.Equal(t, "agent-1", err.Details["namespace"])
	assert.Equal(t, "query", err.Details["field"])
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeForbidden, GetCode(Forbidden("no")))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
