package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, " WARNING ": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "marketplace-api", "warn")
	l.Info("dropped")
	l.Warn("kept", "request_id", "r1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record: %v (%s)", err, buf.String())
	}
	if rec["service"] != "marketplace-api" || rec["msg"] != "kept" || rec["request_id"] != "r1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
