package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v，期望 %v", in, got, want)
		}
	}
	if ValidLevel("verbose") {
		t.Fatalf("verbose 不应是合法 level")
	}
	if !ValidLevel("") || !ValidLevel("Debug") {
		t.Fatalf("空串与 Debug 应合法")
	}
}

func TestSetup_JSONWithRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(&buf, "debug", "json")

	ctx := WithRequestID(context.Background(), "req-1")
	FromContext(ctx).Debug("hello", "k", "v")

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("期望 JSON 日志，实际=%q err=%v", buf.String(), err)
	}
	if m["request_id"] != "req-1" || m["msg"] != "hello" || m["k"] != "v" {
		t.Fatalf("日志字段不符合预期：%v", m)
	}
}

func TestSetup_TextFiltersByLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := Setup(&buf, "warn", "text")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level 过滤不符合预期：%q", out)
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("无请求 ID 时应返回空串")
	}
}
