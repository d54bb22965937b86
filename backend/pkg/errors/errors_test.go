package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"not found", NewNotFound("user", 7), ErrorTypeNotFound},
		{"wrapped not found", fmt.Errorf("connect: %w", NewNotFound("user", 7)), ErrorTypeNotFound},
		{"invalid input", NewInvalidInput("limit", "must be positive"), ErrorTypeInvalidInput},
		{"conflict", NewConflict("user", 1, "duplicate"), ErrorTypeConflict},
		{"cancelled", NewCancelled("suggestions", context.Canceled), ErrorTypeCancelled},
		{"bare context error", context.DeadlineExceeded, ErrorTypeCancelled},
		{"internal", NewInternal("journal append", fmt.Errorf("disk full")), ErrorTypeInternal},
		{"foreign", fmt.Errorf("boom"), ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
	assert.Equal(t, ErrorType(""), KindOf(nil))
}

func TestNotFoundCarriesID(t *testing.T) {
	err := NewNotFound("company", int64(42))
	assert.Equal(t, "company", err.Entity)
	assert.Equal(t, "42", err.ID)
	assert.Contains(t, err.Error(), "company not found: 42")
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext("x", nil))
	assert.True(t, IsCancelled(FromContext("x", context.Canceled)))

	other := fmt.Errorf("other")
	assert.Equal(t, other, FromContext("x", other))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewInternal("neo4j write", nil)))
	assert.False(t, IsRetryable(NewNotFound("user", 1)))
	assert.False(t, IsRetryable(NewCancelled("q", context.Canceled)))
}

func TestMessageOf(t *testing.T) {
	wrapped := fmt.Errorf("query: %w", NewInvalidInput("limit", "must be positive"))
	assert.Equal(t, "invalid limit: must be positive", MessageOf(wrapped))
	assert.Equal(t, "internal failure: append", MessageOf(NewInternal("append", fmt.Errorf("disk"))))
	assert.Equal(t, "", MessageOf(fmt.Errorf("boom")))
}
