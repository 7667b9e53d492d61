package shared

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetTraceID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	traced := SetTraceID(ctx)
	id := GetTraceID(traced)
	require.Len(t, id, TraceIDLength)
	_, err := hex.DecodeString(id)
	assert.NoError(t, err)

	assert.NotEqual(t, id, GetTraceID(SetTraceID(ctx)))
	assert.Empty(t, GetTraceID(ctx))
}

func TestGetTraceIDWithWrongType(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestWithTraceID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "plain token", incoming: "abc-123_XYZ", keep: true},
		{name: "empty", incoming: ""},
		{name: "newline injection", incoming: "abc\n{\"level\":\"ERROR\"}"},
		{name: "too long", incoming: string(make([]byte, 65))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id := GetTraceID(WithTraceID(context.Background(), tt.incoming))
			if tt.keep {
				assert.Equal(t, tt.incoming, id)
				return
			}
			assert.Len(t, id, TraceIDLength)
		})
	}
}

func TestOperatorContext(t *testing.T) {
	t.Parallel()

	_, ok := GetOperator(context.Background())
	assert.False(t, ok)

	_, ok = GetOperator(WithOperator(context.Background(), ""))
	assert.False(t, ok)

	subject, ok := GetOperator(WithOperator(context.Background(), "ops"))
	assert.True(t, ok)
	assert.Equal(t, "ops", subject)
}
