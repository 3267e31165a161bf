package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 4 * time.Second

	// DefaultUserAgent 是对参考服务自报家门用的 UA。
	DefaultUserAgent = "ncmq/1.0 (+https://github.com/John-Robertt/ncmq)"
)

// retryStatuses 是视为“瞬时失败”的状态码：限流 + 网关/服务端错误。
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Transport 把“固定请求头 + 有界重试 + 指数退避”固化为统一策略。
//
// 设计目标：remote 包只负责“拼 URL + 解析 JSON”，不关心网络策略细节。
// 重试对调用方透明：调用方只看到最后一次尝试的结果。
type Transport struct {
	Base http.RoundTripper

	UserAgent string

	// MaxAttempts 表示最大尝试次数（含首次）。例如 3 表示最多重试 2 次。
	MaxAttempts int

	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Sleep 用于退避等待；测试可以替换为不等待的实现。
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.MaxAttempts
	if max < 1 {
		max = 1
	}
	if !canRetry {
		max = 1
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 1; attempt <= max; attempt++ {
		r := cloneRequest(req)
		ua := strings.TrimSpace(t.UserAgent)
		if ua == "" {
			ua = DefaultUserAgent
		}
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", ua)
		}
		if r.Header.Get("Accept") == "" {
			r.Header.Set("Accept", "application/json")
		}

		resp, lastErr = base.RoundTrip(r)
		if lastErr == nil && !retryStatuses[resp.StatusCode] {
			return resp, nil
		}
		if attempt == max {
			break
		}
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后结果（更可解释）。
			break
		}

		wait := t.backoff(attempt, resp)
		t.logger().Warn("retrying request",
			"url", req.URL.String(),
			"attempt", attempt,
			"status", statusOf(resp),
			"error", lastErr,
			"wait", wait,
		)
		if resp != nil {
			drain(resp)
			resp = nil
		}
		if err := t.sleep(req.Context(), wait); err != nil {
			return nil, err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return resp, nil
}

// backoff 计算第 attempt 次失败后的等待时间：base * 2^(attempt-1)，封顶 BackoffMax。
// 若服务端给出数字形式的 Retry-After，则取二者较大值（同样封顶）。
func (t *Transport) backoff(attempt int, resp *http.Response) time.Duration {
	base := t.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	capD := t.BackoffMax
	if capD <= 0 {
		capD = defaultBackoffMax
	}

	d := base << (attempt - 1)
	if resp != nil {
		if s := strings.TrimSpace(resp.Header.Get("Retry-After")); s != "" {
			if sec, err := strconv.Atoi(s); err == nil && sec > 0 {
				if ra := time.Duration(sec) * time.Second; ra > d {
					d = ra
				}
			}
		}
	}
	if d > capD || d <= 0 {
		d = capD
	}
	return d
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	return req.Clone(req.Context())
}

// drain 读完并关闭被丢弃的响应体，让底层连接可以复用。
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// NewClient 构造访问参考服务的 HTTP client。
//
// 规则：
// - 固定 UA + Accept: application/json
// - 429/500/502/503/504 与连接错误有界重试（最多 3 次尝试，指数退避）
// - 单次逻辑调用总超时 20s（含重试）
func NewClient(userAgent string) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}
	tr := &Transport{
		Base:        base,
		UserAgent:   strings.TrimSpace(userAgent),
		MaxAttempts: defaultMaxAttempts,
		BackoffBase: defaultBackoffBase,
		BackoffMax:  defaultBackoffMax,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   defaultTimeout,
	}
}
