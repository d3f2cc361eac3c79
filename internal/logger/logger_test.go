package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultWriter(t *testing.T) {
	log := New(Config{Level: slog.LevelInfo, Format: FormatJSON})
	require.NotNil(t, log)
	assert.NotNil(t, log.Logger)
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		environment string
		contains    string
	}{
		{name: "explicit json", format: FormatJSON, contains: `"msg":"rebuild done"`},
		{name: "explicit text", format: FormatText, contains: `msg="rebuild done"`},
		{name: "production defaults to json", environment: "production", contains: `"msg":"rebuild done"`},
		{name: "development defaults to pretty", environment: "development", contains: colorBold + "rebuild done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{
				Level:       slog.LevelInfo,
				Format:      tt.format,
				Environment: tt.environment,
				Writer:      &buf,
			})

			log.Info("rebuild done")

			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat(""))
	assert.True(t, ValidFormat(FormatJSON))
	assert.True(t, ValidFormat(FormatPretty))
	assert.True(t, ValidFormat(FormatText))
	assert.False(t, ValidFormat("xml"))
}

func TestPrettyHandler_Enabled(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestPrettyHandler_NilOptionsDefaultsToInfo(t *testing.T) {
	h := NewPrettyHandler(&bytes.Buffer{}, nil)

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestPrettyHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.Warn("statusCompile", "module", "rule", "status", 2)

	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "statusCompile")
	assert.Contains(t, out, "module=rule")
	assert.Contains(t, out, "status=2")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestPrettyHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil)).
		With("component", "trigger").
		WithGroup("cycle").
		With("id", "cyc-1")

	log.Info("drained", "count", 3)

	out := buf.String()
	assert.Contains(t, out, "component=trigger")
	assert.Contains(t, out, "cycle.id=cyc-1")
	assert.Contains(t, out, "cycle.count=3")
}

func TestPrettyHandler_WithSource(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{AddSource: true}))

	log.Info("with source")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 7, 22, 2, 22, 0, time.UTC)

	assert.Equal(t, "plain", formatValue(slog.StringValue("plain")))
	assert.Equal(t, `"two words"`, formatValue(slog.StringValue("two words")))
	assert.Equal(t, "20s", formatValue(slog.DurationValue(20*time.Second)))
	assert.Equal(t, ts.Format(time.RFC3339), formatValue(slog.TimeValue(ts)))
	assert.Equal(t, "42", formatValue(slog.IntValue(42)))
	assert.Equal(t, "true", formatValue(slog.BoolValue(true)))
}

func TestFormatLevel(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range tests {
		got, _ := formatLevel(tt.level)
		assert.Equal(t, tt.want, got)
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatJSON, Writer: &buf})

	log.Component("watcher").Info("register", "path", "/pkg")

	assert.Contains(t, buf.String(), `"component":"watcher"`)
	assert.Contains(t, buf.String(), `"path":"/pkg"`)
}

func TestLogger_WithHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: FormatJSON, Writer: &buf})

	log.WithError(errors.New("make failed")).
		WithField("module", "rule").
		WithFields(map[string]any{"status": 2}).
		Warn("rebuild failed")

	out := buf.String()
	assert.Contains(t, out, `"error":"make failed"`)
	assert.Contains(t, out, `"module":"rule"`)
	assert.Contains(t, out, `"status":2`)
}
