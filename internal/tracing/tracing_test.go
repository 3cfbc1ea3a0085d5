package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// resetProvider lets a test install its own provider.
func resetProvider(t *testing.T) {
	t.Helper()
	providerOnce = sync.Once{}
	providerErr = nil
	provider = nil
	traceFile = nil
	t.Cleanup(func() { Shutdown(context.Background()) })
}

func TestNilSpanIsSafe(t *testing.T) {
	var sp *Span
	assert.Nil(t, sp.WithAttributes(map[string]string{"a": "b"}))
	assert.Nil(t, sp.SetInt("n", 1))
	EndSpan(sp, errors.New("ignored"))
}

func TestSpansReachExporter(t *testing.T) {
	resetProvider(t)
	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, InitWithExporter("ptyhost-test", "test", exporter))

	_, ok := StartSpan(context.Background(), "pty.create")
	ok.WithAttributes(map[string]string{"shell": "/bin/sh"}).SetInt("session.id", 7)
	EndSpan(ok, nil)

	_, failed := StartSpan(context.Background(), "pty.write")
	EndSpan(failed, errors.New("session not found"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "pty.create", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.String("shell", "/bin/sh"))
	assert.Contains(t, spans[0].Attributes, attribute.Int64("session.id", 7))

	assert.Equal(t, "pty.write", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "session not found", spans[1].Status.Description)
}

func TestInitTraceFileClosedOnShutdown(t *testing.T) {
	resetProvider(t)
	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, Init("ptyhost-test", "test", path))

	f := traceFile
	require.NotNil(t, f)

	_, sp := StartSpan(context.Background(), "pty.close")
	EndSpan(sp, nil)

	require.NoError(t, Shutdown(context.Background()))
	assert.Nil(t, traceFile)
	_, err := f.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pty.close")
}

func TestInitSecondCallLeavesFileClosed(t *testing.T) {
	resetProvider(t)
	require.NoError(t, InitWithExporter("ptyhost-test", "test", tracetest.NewInMemoryExporter()))

	require.NoError(t, Init("ptyhost-test", "test", filepath.Join(t.TempDir(), "unused.json")))
	assert.Nil(t, traceFile)
}
