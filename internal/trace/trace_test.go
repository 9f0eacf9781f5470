package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledSpansAreNoop(t *testing.T) {
	require.NoError(t, Init(false))
	assert.False(t, Enabled())

	ctx, span := StartSpan(context.Background(), "tick", attribute.String("session", "s1"))
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	_, ok := TraceID(ctx)
	assert.False(t, ok)
	assert.NoError(t, Shutdown(context.Background()))
}
