package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestRootCommandRegistersJobs(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"check-inactive-sessions", "flush-traffic-cache", "update-user-segments", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotNil(t, cmd.RunE, name)
	}
}

func TestCloseShutsDownTracer(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	e := &jobEnv{tp: tp}

	assert.NotPanics(t, e.close)

	_, span := tp.Tracer("jobs-test").Start(context.Background(), "after-close")
	assert.False(t, span.IsRecording())
}

func TestCloseWithNothingOpened(t *testing.T) {
	// a job that failed while loading config has nothing to release
	assert.NotPanics(t, (&jobEnv{}).close)
}
