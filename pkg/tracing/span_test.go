package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpanPhases(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "reopen", "")
	assert.NotEmpty(t, root.TraceID)

	_, build := StartChildSpan(ctx, "build")
	time.Sleep(2 * time.Millisecond)
	build.End()
	_, warm := StartChildSpan(ctx, "warm")
	warm.End()
	root.End()

	phases := root.Phases()
	assert.Contains(t, phases, "build")
	assert.Contains(t, phases, "warm")
	assert.GreaterOrEqual(t, phases["build"], 2*time.Millisecond)
	assert.Equal(t, root.TraceID, build.TraceID)
	assert.Same(t, root, SpanFromContext(ctx))
}
