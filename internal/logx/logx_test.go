package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn", "pretty")
	Infof("should not print")
	Warnf("disk %s", "full")

	out := buf.String()
	if strings.Contains(out, "should not print") {
		t.Fatalf("info should be filtered when level=warn: %q", out)
	}
	if !strings.Contains(out, "[WARN] disk full") {
		t.Fatalf("expect warn line, got %q", out)
	}
}

func TestPrettyWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, slog.LevelInfo)).With("feed", "a")
	logger.Info("fetched", "items", 3)

	out := buf.String()
	if !strings.Contains(out, "feed=a") || !strings.Contains(out, "items=3") {
		t.Fatalf("expect flattened attrs, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug", "json")
	Debugf("hello %d", 1)
	if !strings.Contains(buf.String(), `"msg":"hello 1"`) {
		t.Fatalf("expect json record, got %q", buf.String())
	}
}

func TestOffSilencesEverything(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "off", "pretty")
	Errorf("boom")
	if buf.Len() != 0 {
		t.Fatalf("expect no output when level=off, got %q", buf.String())
	}
}
