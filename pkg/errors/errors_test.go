package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", fmt.Errorf("get bills: %w", ErrTransport), true},
		{"invalid payload", fmt.Errorf("decode: %w", ErrInvalidPayload), false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"permanent app error", New(ErrTransport, CategoryPermanent, "404"), false},
		{"retryable app error", Newf(ErrInvalidInput, CategoryRetryable, "busy %d", 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrRecordNotFound, CategoryPermanent, "bill 2023-S1"))
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Contains(t, err.Error(), "bill 2023-S1")
}
