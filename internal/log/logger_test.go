package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Configure is once-only per process, so all logger assertions share one buffer.
func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "test-service"})

	Base().Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test-service", entry["service"])
	assert.Equal(t, "hello", entry["message"])

	buf.Reset()
	WithComponent("queue").Info().Msg("tick")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "queue", entry["component"])

	buf.Reset()
	ctx := ContextWithJobID(context.Background(), "job-123")
	FromContext(ctx).Info().Msg("working")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job-123", entry["job_id"])
}

// The helpers return pointers so chained calls like FromContext(ctx).Info()
// stay addressable; each call must still hand out an independent logger.
func TestHelpersReturnIndependentLoggers(t *testing.T) {
	Configure(Config{})

	a := FromContext(context.Background())
	b := FromContext(context.Background())
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotSame(t, a, b)

	c := WithComponent("api")
	require.NotNil(t, c)
	assert.NotSame(t, a, c)
}

func TestJobIDRoundTrip(t *testing.T) {
	ctx := ContextWithJobID(context.Background(), "job-123")
	assert.Equal(t, "job-123", JobIDFromContext(ctx))
	assert.Empty(t, JobIDFromContext(context.Background()))
}
