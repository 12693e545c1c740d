package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing and returns
// a cleanup func that restores the previous output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	reconfigure()

	return buf, func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Run("debug level shows everything", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("info level filters debug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})

	t.Run("error level filters everything below", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("ERROR")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	SetLevel("INFO")
	Info("put stream committed", Component("remotecas"), ContentHash("sha256:abc123"), Size(1024))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "put stream committed", line["msg"])
	assert.Equal(t, "remotecas", line[KeyComponent])
	assert.Equal(t, float64(1024), line[KeySize])

	SetFormat("text")
}

func TestContextFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()
	SetLevel("DEBUG")

	lc := NewLogContext("worker-7").WithOperation("AddOrGet").WithContentHash("sha256:deadbeef")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "memoization race resolved")

	out := buf.String()
	assert.Contains(t, out, "worker-7")
	assert.Contains(t, out, "AddOrGet")
	assert.Contains(t, out, "sha256:deadbeef")
}

func TestLogContextClone(t *testing.T) {
	lc := NewLogContext("node-a")
	clone := lc.WithOperation("GetRole")

	assert.Equal(t, "node-a", clone.SenderID)
	assert.Equal(t, "GetRole", clone.Operation)
	assert.Empty(t, lc.Operation, "original context must not be mutated")
}

func TestFromContextNilSafe(t *testing.T) {
	assert.Nil(t, FromContext(nil))
	assert.Nil(t, FromContext(context.Background()))
}
