package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitIsRetryableThroughWrapping(t *testing.T) {
	base := RateLimit(stderrors.New("403 rate limit exceeded"), 30*time.Second, "list issues")
	wrapped := fmt.Errorf("collect issues: %w", base)

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, 30*time.Second, RetryAfterOf(wrapped))
	assert.True(t, IsType(wrapped, ErrorTypeCollection))
	assert.False(t, IsFatal(wrapped))
}

func TestCollectionErrorTransience(t *testing.T) {
	tests := []struct {
		name      string
		transient bool
	}{
		{"transient", true},
		{"permanent", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CollectionError(stderrors.New("boom"), tt.transient, "fetch")
			assert.Equal(t, tt.transient, IsRetryable(err))
			assert.Zero(t, RetryAfterOf(err))
		})
	}
}

func TestStoreBindingIsFatal(t *testing.T) {
	err := StoreBindingErrorf("store already bound to %s", "https://github.com/a/b")
	require.Error(t, err)
	assert.True(t, IsFatal(fmt.Errorf("check: %w", err)))
	assert.Equal(t, ErrorTypeStoreBinding, GetType(err))
	assert.Contains(t, err.DetailedString(), "STORE_BINDING")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeStorage, SeverityHigh, "noop"))
	assert.Nil(t, CollectionError(nil, true, "noop"))
}

func TestIsMatchesType(t *testing.T) {
	err := SchemaErrorf("commit record %d has no hash", 3)
	assert.True(t, stderrors.Is(err, &Error{Type: ErrorTypeSchema}))
	assert.False(t, stderrors.Is(err, &Error{Type: ErrorTypeStorage}))
	assert.Equal(t, ErrorTypeInternal, GetType(stderrors.New("plain")))
}
