package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func jsonLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{Level: level, Format: "json", Component: ComponentIngestion, Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)

	logger.With(FieldProjectID, int64(7)).Info("Ingestion started", FieldRunID, "run-1")
	logger.WithComponent(ComponentIBANs).Warn("IBANs refreshed")
	logger.Debug("not written")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0][FieldComponent] != ComponentIngestion || lines[0][FieldProjectID] != float64(7) || lines[0][FieldRunID] != "run-1" {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	if lines[1][FieldComponent] != ComponentIBANs || lines[1]["level"] != "WARN" {
		t.Errorf("unexpected second line: %v", lines[1])
	}
}

func TestNew_Defaults(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	if logger.Component() != ComponentApp {
		t.Errorf("component = %q, want %q", logger.Component(), ComponentApp)
	}
	logger.Info("hello")
	if !strings.Contains(buf.String(), "component=app") {
		t.Errorf("text output missing component: %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()).Component(); got != "unknown" {
		t.Errorf("fallback component = %q", got)
	}

	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)
	ctx := NewContext(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, slog.LevelInfo)

	handler := Middleware(logger)(RequestIDMiddleware(func(r *http.Request) string {
		return r.Header.Get("X-Request-ID")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "handled")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/totals", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0][FieldRequestID] != "abc-123" {
		t.Errorf("unexpected log output: %v", lines)
	}
}

func TestStructuredLogger_LevelsByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(jsonLogger(&buf, slog.LevelDebug))
		req := httptest.NewRequest(http.MethodGet, "/api/projects/1/amounts?x=1", nil)

		sl.LogHTTPStart(context.Background(), req, "203.0.113.1")
		sl.LogHTTPEnd(context.Background(), req, tt.status, 12, "203.0.113.1")

		lines := decodeLines(t, &buf)
		if len(lines) != 2 {
			t.Fatalf("status %d: got %d lines", tt.status, len(lines))
		}
		if lines[0]["level"] != "DEBUG" {
			t.Errorf("start logged at %v", lines[0]["level"])
		}
		end := lines[1]
		if end["level"] != tt.level || end[FieldStatusCode] != float64(tt.status) || end[FieldQuery] != "x=1" {
			t.Errorf("status %d: unexpected end line %v", tt.status, end)
		}
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithProject(3).
		WithAccount(9, "NL13BUNQ9900299981", "Buurthuis").
		WithError(errors.New("boom")).
		WithError(nil)

	if fields[FieldError] != "boom" || fields[FieldAccountID] != int64(9) || fields[FieldIBAN] != "NL13BUNQ9900299981" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Errorf("ToSlice length = %d", got)
	}
}
