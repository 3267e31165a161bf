// Package logging 基于 log/slog 提供统一的结构化日志配置。
//
// CLI 把日志写到 stderr（stdout 留给 JSON 报告）；HTTP 服务通过 WithRequestID 把请求 ID
// 放进 context，FromContext 取回时自动带上 request_id 字段。
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey struct{}

// Setup 按 level/format 构造 logger 并设为 slog 默认 logger。
//
// level: debug / info / warn / error（默认 info）
// format: text / json（默认 text）
func Setup(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// ParseLevel 把字符串转换为 slog.Level；无法识别时返回 info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel 报告 level 是否是可识别的取值（空串视为默认，合法）。
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// WithRequestID 返回携带请求 ID 的 context。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID 取出 WithRequestID 放入的请求 ID；没有则返回空串。
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext 返回默认 logger；context 带请求 ID 时附加 request_id 字段。
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	return l
}
