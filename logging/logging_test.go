package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")
	log.Info("hidden")
	log.Warn("shown", "module", "test")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "module=test") {
		t.Errorf("unexpected output: %q", out)
	}

	buf.Reset()
	New(&buf, "info", "json").Info("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json handler output = %q", buf.String())
	}
}
