package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json is the default format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "info", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		logger.Info("hello", "task_id", "task-1")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("expected JSON output, got %q", buf.String())
		}
		if entry["task_id"] != "task-1" {
			t.Fatalf("expected task_id attribute, got %v", entry["task_id"])
		}
	})

	t.Run("text format and level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "warn", "text")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		logger.Info("dropped")
		logger.Warn("kept")

		out := buf.String()
		if strings.Contains(out, "dropped") || !strings.Contains(out, "msg=kept") {
			t.Fatalf("unexpected text output %q", out)
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		if _, err := New(&bytes.Buffer{}, "loud", "json"); err == nil {
			t.Fatalf("expected error for unknown level")
		}
		if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
			t.Fatalf("expected error for unknown format")
		}
	})
}

func TestContextWithLogger(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatalf("expected logger from context")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil logger for bare context")
	}
	if got := ContextWithLogger(context.Background(), nil); FromContext(got) != nil {
		t.Fatalf("expected nil logger to be ignored")
	}
}
