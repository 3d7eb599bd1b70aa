package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"papercast/internal/services"
)

func TestConsoleOutputIncludesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger = NewComponentLogger(logger, "pipeline")
	logger.Info("stage completed", String(FieldStage, "collect"), Int("papers", 3))

	line := buf.String()
	if !strings.Contains(line, "pipeline: stage completed") {
		t.Fatalf("missing component prefix: %q", line)
	}
	if !strings.Contains(line, "stage=collect") || !strings.Contains(line, "papers=3") {
		t.Fatalf("missing attrs: %q", line)
	}
}

func TestConsoleQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("skipping record", String("reason", "malformed stored JSON"))
	if !strings.Contains(buf.String(), `reason="malformed stored JSON"`) {
		t.Fatalf("value not quoted: %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("run started", String(FieldEpisodeID, "2025-01-27"))
	line := buf.String()
	if !strings.Contains(line, `"msg":"run started"`) || !strings.Contains(line, `"episode_id":"2025-01-27"`) {
		t.Fatalf("unexpected json output: %q", line)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn should pass: %q", out)
	}
}

func TestWithContextDerivesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithEpisodeID(context.Background(), "2025-01-27")
	ctx = services.WithStage(ctx, "synthesize")

	WithContext(ctx, logger).Info("attempt")
	line := buf.String()
	if !strings.Contains(line, "episode_id=2025-01-27") || !strings.Contains(line, "stage=synthesize") {
		t.Fatalf("context fields missing: %q", line)
	}
}
