package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") || !strings.Contains(out, `"key":"value"`) {
		t.Fatalf("json output missing fields: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	if buf.Len() > 0 {
		t.Fatalf("info leaked at warn level: %s", buf.String())
	}
	log.Warn("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("warn missing: %s", buf.String())
	}
}

func TestPrettyOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Debug("loading", "path", "a b.nxs", "blocks", 4)

	out := buf.String()
	if !strings.Contains(out, "loading") {
		t.Fatalf("message missing: %s", out)
	}
	if !strings.Contains(out, `path="a b.nxs"`) {
		t.Fatalf("string with spaces should be quoted: %s", out)
	}
	if !strings.Contains(out, "blocks=4") {
		t.Fatalf("numeric attr missing: %s", out)
	}
}

func TestWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).With("format", "NXS")
	log.Info("opened")
	if !strings.Contains(buf.String(), "format=NXS") {
		t.Fatalf("bound attr missing: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("context logger not used: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("bare context should yield the default logger")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
