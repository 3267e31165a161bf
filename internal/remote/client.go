package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/John-Robertt/ncmq/internal/domain"
	"github.com/John-Robertt/ncmq/internal/infra/cache"
)

const (
	// DefaultBaseURL 是 BrasilAPI 的 NCM 资源根路径。
	DefaultBaseURL = "https://brasilapi.com.br/api/ncm/v1"

	// StatusTransportFailure 表示网络调用本身失败（连接错误/超时/响应不可读）。
	StatusTransportFailure = 0

	maxBodyBytes = 4 << 20
)

// Response 是一次查询的最终结果（重试对这里透明）。
type Response struct {
	// Status 是 HTTP 状态码；网络失败时为 StatusTransportFailure。
	Status  int
	Payload Payload
	// Reason 是非 200 响应体的简短摘要（JSON message 或 HTML <title>），可能为空。
	Reason string
}

func (r Response) OK() bool { return r.Status == http.StatusOK }

// Client 负责两类只读查询：精确查询 {base}/{code} 与搜索 {base}?search={term}。
//
// 约束：
// - 永远不向调用方返回 error：任何网络异常都折叠为 StatusTransportFailure
// - 结果（含失败）按“操作 + 参数”缓存 TTL 时长
// - 重试/UA/超时由 HTTP client 的 Transport 统一负责（见 infra/httpx）
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Cache   cache.Store
	TTL     time.Duration
	Logger  *slog.Logger
}

// New 构造 Client。store 为 nil 时不缓存。
func New(baseURL string, hc *http.Client, store cache.Store) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    hc,
		Cache:   store,
		TTL:     cache.DefaultTTL,
	}
}

// ExactURL 返回精确查询的 URL（也是 provenance 标记）。
func (c *Client) ExactURL(code domain.Code) string {
	return c.BaseURL + "/" + url.PathEscape(string(code))
}

// SearchURL 返回搜索查询的 URL（也是 provenance 标记）。
func (c *Client) SearchURL(term string) string {
	return c.BaseURL + "?search=" + url.QueryEscape(term)
}

// Exact 执行 GET {base}/{code}。200 时 payload 可能是单个对象，也可能是对象列表。
func (c *Client) Exact(ctx context.Context, code domain.Code) Response {
	return c.cached(ctx, "exact:"+string(code), c.ExactURL(code), false)
}

// Search 执行 GET {base}?search={term}。200 时 payload 总是列表（单对象会被包成一元列表）。
func (c *Client) Search(ctx context.Context, term string) Response {
	return c.cached(ctx, "search:"+term, c.SearchURL(term), true)
}

func (c *Client) cached(ctx context.Context, key, u string, asList bool) Response {
	if c.Cache != nil {
		if v, ok := c.Cache.Get(key); ok {
			if r, ok := v.(Response); ok {
				return r
			}
		}
	}

	r := c.fetch(ctx, u, asList)

	// 调用方已取消：失败来自本次请求而不是远端，不能写进共享缓存。
	if ctx.Err() != nil {
		return r
	}
	if c.Cache != nil {
		c.Cache.Put(key, r, c.TTL)
	}
	return r
}

func (c *Client) fetch(ctx context.Context, u string, asList bool) Response {
	log := c.logger().With("url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		log.Warn("build request failed", "error", err)
		return Response{Status: StatusTransportFailure}
	}

	started := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Warn("request failed", "error", err, "elapsed", time.Since(started))
		return Response{Status: StatusTransportFailure}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn("read body failed", "status", resp.StatusCode, "error", err)
		return Response{Status: StatusTransportFailure}
	}
	log.Debug("response", "status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(started))

	if resp.StatusCode != http.StatusOK {
		return Response{
			Status: resp.StatusCode,
			Reason: reasonFromBody(resp.Header.Get("Content-Type"), body),
		}
	}

	p, err := decodePayload(body)
	if err != nil {
		// 200 但 JSON 不可解析：与网络失败同等对待（无法信任该响应）。
		log.Warn("decode payload failed", "error", err)
		return Response{Status: StatusTransportFailure}
	}
	if asList {
		p = p.asList()
	}
	return Response{Status: http.StatusOK, Payload: p}
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
