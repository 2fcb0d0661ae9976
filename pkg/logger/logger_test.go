package logger

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igresolver/pkg/config"
	errs "igresolver/pkg/errors"
)

func bufferLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	return NewWithWriter(&buf, zerolog.DebugLevel), &buf
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "console info",
			cfg:     &config.LoggingConfig{Level: "info"},
			wantErr: false,
		},
		{
			name:    "json debug",
			cfg:     &config.LoggingConfig{Level: "debug", Format: "json"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			cfg:     &config.LoggingConfig{Level: "invalid"},
			wantErr: true,
		},
		{
			name:    "with file output",
			cfg:     &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "igresolver.log")},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	logger, buf := bufferLogger(t)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
		assert.Contains(t, output, msg)
	}
	assert.Contains(t, output, `"app":"igresolver"`)
}

func TestFieldChaining(t *testing.T) {
	logger, buf := bufferLogger(t)

	logger.
		WithField("tier", "embed").
		WithFields(map[string]interface{}{"operation": "get_post", "attempt": 2}).
		WarnWithFields("tier miss", map[string]interface{}{"shortcode": "CxYz"})

	output := buf.String()
	assert.Contains(t, output, `"tier":"embed"`)
	assert.Contains(t, output, `"operation":"get_post"`)
	assert.Contains(t, output, `"attempt":2`)
	assert.Contains(t, output, `"shortcode":"CxYz"`)
}

func TestWithFieldDoesNotLeakIntoParent(t *testing.T) {
	logger, buf := bufferLogger(t)

	_ = logger.WithField("child", true)
	logger.Info("parent")

	assert.NotContains(t, buf.String(), "child")
}

func TestWithError(t *testing.T) {
	logger, buf := bufferLogger(t)

	assert.Same(t, logger, logger.WithError(nil))

	logger.WithError(errors.New("session expired")).Error("relogin failed")
	assert.Contains(t, buf.String(), "session expired")
	assert.NotContains(t, buf.String(), "error_type")

	buf.Reset()
	logger.WithError(errs.New(errs.ErrorTypeExtractionMiss, "no script")).Warn("tier missed")
	assert.Contains(t, buf.String(), `"error_type":"extraction_miss"`)
}

func TestErrorField(t *testing.T) {
	logger, buf := bufferLogger(t)

	logger.InfoWithFields("miss", map[string]interface{}{"cause": errors.New("no script")})
	assert.Contains(t, buf.String(), `"cause":"no script"`)
}

func TestWithContext(t *testing.T) {
	logger, buf := bufferLogger(t)

	ctx := ContextWithFields(context.Background(), map[string]interface{}{"request_id": "abc"})
	ctx = ContextWithFields(ctx, map[string]interface{}{"route": "post"})
	logger.WithContext(ctx).Info("resolving")

	output := buf.String()
	assert.Contains(t, output, `"request_id":"abc"`)
	assert.Contains(t, output, `"route":"post"`)

	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestLogRequest(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "/instagram/p/abc", 200, 1.5)
	LogRequest(tl, "GET", "/instagram/p/a!", 400, 0.2)
	LogRequest(tl, "GET", "/instagram/u/x", 500, 30)

	assert.Len(t, tl.GetMessagesByLevel("INFO"), 1)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 1)
}

func TestTestLoggerSharesSink(t *testing.T) {
	tl := NewTestLogger()

	child := tl.WithField("tier", "private").WithError(errors.New("boom"))
	child.Warn("tier miss")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "private", msgs[0].Fields["tier"])
	assert.EqualError(t, msgs[0].Error, "boom")
	assert.True(t, tl.HasMessageContaining("miss"))

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug", Format: "json"}))
	assert.NotNil(t, GetLogger())
	assert.True(t, strings.Contains(GetLogger().GetZerolog().GetLevel().String(), "debug"))
}
