package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOutput(t *testing.T) {
	t.Run("creates output with writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		assert.NotNil(t, out)
		assert.Equal(t, buf, out.writer)
	})
}

func TestDefaultOutput(t *testing.T) {
	t.Run("creates output with stdout", func(t *testing.T) {
		out := DefaultOutput()

		assert.NotNil(t, out)
	})
}

func TestOutputSuccess(t *testing.T) {
	t.Run("writes success message with checkmark", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Success("enqueued job to qdone_work")

		output := buf.String()
		assert.Contains(t, output, "✓")
		assert.Contains(t, output, "enqueued job to qdone_work")
	})

	t.Run("formats success message with arguments", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Success("enqueued %d jobs", 24)

		output := buf.String()
		assert.Contains(t, output, "✓")
		assert.Contains(t, output, "enqueued 24 jobs")
	})
}

func TestOutputError(t *testing.T) {
	t.Run("writes error message with X mark", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Error("access denied")

		output := buf.String()
		assert.Contains(t, output, "✗")
		assert.Contains(t, output, "access denied")
	})

	t.Run("formats error message with arguments", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Error("queue %q does not exist", "qdone_work")

		output := buf.String()
		assert.Contains(t, output, "✗")
		assert.Contains(t, output, `queue "qdone_work" does not exist`)
	})
}

func TestOutputWarning(t *testing.T) {
	t.Run("writes warning message with warning icon", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Warning("job exited nonzero")

		output := buf.String()
		assert.Contains(t, output, "⚠")
		assert.Contains(t, output, "job exited nonzero")
	})

	t.Run("formats warning message with arguments", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Warning("failed to extend visibility timeout: %v", assert.AnError)

		output := buf.String()
		assert.Contains(t, output, "⚠")
		assert.Contains(t, output, "failed to extend visibility timeout")
	})
}

func TestOutputInfo(t *testing.T) {
	t.Run("writes info message with info icon", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Info("polling qdone_work")

		output := buf.String()
		assert.Contains(t, output, "ℹ")
		assert.Contains(t, output, "polling qdone_work")
	})

	t.Run("formats info message with arguments", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Info("processed %d jobs (%d succeeded, %d failed)", 3, 2, 1)

		output := buf.String()
		assert.Contains(t, output, "ℹ")
		assert.Contains(t, output, "processed 3 jobs (2 succeeded, 1 failed)")
	})
}

func TestOutputMultipleMessages(t *testing.T) {
	t.Run("writes multiple messages in sequence", func(t *testing.T) {
		buf := &bytes.Buffer{}
		out := NewOutput(buf)

		out.Info("polling qdone_work")
		out.Success("enqueued job to qdone_work")
		out.Warning("job exited nonzero")
		out.Error("queue does not exist")

		output := buf.String()
		assert.Contains(t, output, "polling qdone_work")
		assert.Contains(t, output, "enqueued job to qdone_work")
		assert.Contains(t, output, "job exited nonzero")
		assert.Contains(t, output, "queue does not exist")
	})
}

func BenchmarkOutputSuccess(b *testing.B) {
	buf := &bytes.Buffer{}
	out := NewOutput(buf)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		out.Success("enqueued job")
	}
}

func BenchmarkOutputFormatted(b *testing.B) {
	buf := &bytes.Buffer{}
	out := NewOutput(buf)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		out.Success("enqueued %d jobs to %s", 10, "qdone_work")
	}
}
