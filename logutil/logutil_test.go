package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func setDefault(t *testing.T, buf *bytes.Buffer, level slog.Level, format Format) {
	t.Helper()
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	Setup(buf, level, format)
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	setDefault(t, &buf, LevelTrace, FormatText)

	Trace("registered rule", "name", "root")

	out := buf.String()
	for _, want := range []string{"level=TRACE", `msg="registered rule"`, "name=root", "source=logutil_test.go:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestTraceDisabled(t *testing.T) {
	var buf bytes.Buffer
	setDefault(t, &buf, slog.LevelInfo, FormatText)

	Trace("hidden")
	slog.Debug("hidden")
	slog.Info("shown")

	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(buf.String(), "source=") {
		t.Error("expected no source at info level")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	setDefault(t, &buf, LevelTrace, FormatJSON)

	Trace("registered rule", "name", "root")

	var record struct {
		Level  string `json:"level"`
		Msg    string `json:"msg"`
		Name   string `json:"name"`
		Source struct {
			File string `json:"file"`
		} `json:"source"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if record.Level != "TRACE" || record.Msg != "registered rule" || record.Name != "root" {
		t.Errorf("unexpected record %+v", record)
	}
	if record.Source.File != "logutil_test.go" {
		t.Errorf("source file = %q", record.Source.File)
	}
}
