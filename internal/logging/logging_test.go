package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/nvinuesa/filter1pux/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text"}

	logger := New(cfg, &buf)
	require.NotNil(t, logger)

	logger.Info("hello", "vault", "Work")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "vault=Work")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "json"}

	logger := New(cfg, &buf)
	logger.Info("test-msg")
	assert.Contains(t, buf.String(), `"msg":"test-msg"`)
}

func TestNew_DoesNotTouchDefault(t *testing.T) {
	before := slog.Default()
	New(&config.Config{LogLevel: "info", LogFormat: "text"}, &bytes.Buffer{})
	assert.Equal(t, before, slog.Default())
}

func TestNew_DefaultLevelHidesInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Default(), &buf)

	logger.Info("info-hidden")
	logger.Warn("warn-shown")

	assert.NotContains(t, buf.String(), "info-hidden")
	assert.Contains(t, buf.String(), "warn-shown")
}

func TestNew_QuietSuppressesWarnings(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{LogLevel: "info", LogFormat: "text", Quiet: true}

	logger := New(cfg, &buf)
	logger.Warn("should-not-appear")
	logger.Error("should-appear")

	assert.NotContains(t, buf.String(), "should-not-appear")
	assert.Contains(t, buf.String(), "should-appear")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestContext_RoundTrip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := NewContext(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))
}

func TestFromContext_FallbackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
