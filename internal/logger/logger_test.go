package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextFieldsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "pos-test", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithActor(ctx, "caixa", "user")
	logg.Info(ctx, "sale recorded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-1" || entry["actor"] != "caixa" || entry["service"] != "pos-test" {
		t.Fatalf("missing fields in %v", entry)
	}
}

func TestErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{Output: &buf})
	logg.Error(context.Background(), "close failed", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["error"] != "boom" || entry["level"] != "error" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logg *Logger
	ctx := logg.WithRequestID(context.Background(), "x")
	logg.Warn(ctx, "ignored")
	logg.Error(ctx, "ignored", nil)
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARN") != zerolog.WarnLevel {
		t.Fatalf("expected warn level")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Fatalf("expected info fallback")
	}
}
