package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/ncmq/internal/infra/cache"
)

func newServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_Exact_SingleObject(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ncm/v1/21041019" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"codigo":"2104.10.19","descricao":"- Preparações para caldos"}`))
	})

	c := New(srv.URL+"/api/ncm/v1/", srv.Client(), nil)
	r := c.Exact(context.Background(), "21041019")

	if !r.OK() {
		t.Fatalf("期望 200，实际 %d", r.Status)
	}
	if r.Payload.List || !r.Payload.Present() {
		t.Fatalf("期望单对象 payload：%+v", r.Payload)
	}
	code, desc := Extract(r.Payload.Items[0])
	if code != "2104.10.19" || desc != "- Preparações para caldos" {
		t.Fatalf("提取结果不符合预期：%q %q", code, desc)
	}
	if got := c.ExactURL("21041019"); got != srv.URL+"/api/ncm/v1/21041019" {
		t.Fatalf("ExactURL 不符合预期：%q", got)
	}
}

func TestClient_Exact_List(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"code":"08011100","description":"Secos"},{"code":"08011200"}]`))
	})

	r := New(srv.URL, srv.Client(), nil).Exact(context.Background(), "08011100")
	if !r.OK() || !r.Payload.List || len(r.Payload.Items) != 2 {
		t.Fatalf("期望二元列表：%+v", r)
	}
}

func TestClient_Search_WrapsSingleObject(t *testing.T) {
	var gotQuery string
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search")
		_, _ = w.Write([]byte(`{"code":"21041019","description":"Café"}`))
	})

	c := New(srv.URL, srv.Client(), nil)
	r := c.Search(context.Background(), "café torrado")

	if gotQuery != "café torrado" {
		t.Fatalf("search 参数不符合预期：%q", gotQuery)
	}
	if !r.OK() || !r.Payload.List || len(r.Payload.Items) != 1 {
		t.Fatalf("单对象应被包装为一元列表：%+v", r)
	}
	if got := c.SearchURL("café torrado"); got != srv.URL+"?search=caf%C3%A9+torrado" {
		t.Fatalf("SearchURL 不符合预期：%q", got)
	}
}

func TestClient_Search_NullBodyIsEmptyList(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	r := New(srv.URL, srv.Client(), nil).Search(context.Background(), "x")
	if !r.OK() || r.Payload.Present() {
		t.Fatalf("null 应视为空列表：%+v", r)
	}
}

func TestClient_NotFound_ReasonFromJSON(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"NCM não encontrado","type":"NCM_NOT_FOUND","name":"NotFoundError"}`))
	})

	r := New(srv.URL, srv.Client(), nil).Exact(context.Background(), "99999999")
	if r.Status != http.StatusNotFound {
		t.Fatalf("期望 404，实际 %d", r.Status)
	}
	if r.Payload.Present() {
		t.Fatalf("非 200 不应有 payload：%+v", r.Payload)
	}
	if r.Reason != "NCM não encontrado" {
		t.Fatalf("reason 不符合预期：%q", r.Reason)
	}
}

func TestClient_ServerError_ReasonFromHTMLTitle(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><head><title>\n  Attention Required! | Cloudflare \n</title></head><body><h1>blocked</h1></body></html>"))
	})

	r := New(srv.URL, srv.Client(), nil).Exact(context.Background(), "21041019")
	if r.Status != http.StatusForbidden {
		t.Fatalf("期望 403，实际 %d", r.Status)
	}
	if r.Reason != "Attention Required! | Cloudflare" {
		t.Fatalf("reason 不符合预期：%q", r.Reason)
	}
}

func TestClient_InvalidJSONIsTransportFailure(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":`))
	})

	r := New(srv.URL, srv.Client(), nil).Exact(context.Background(), "21041019")
	if r.Status != StatusTransportFailure {
		t.Fatalf("期望 0，实际 %d", r.Status)
	}
}

func TestClient_ConnectionErrorIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	r := New(base, &http.Client{Timeout: time.Second}, nil).Exact(context.Background(), "21041019")
	if r.Status != StatusTransportFailure {
		t.Fatalf("期望 0，实际 %d", r.Status)
	}
}

func TestClient_CachesByOperationAndArgument(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	c := New(srv.URL, srv.Client(), cache.NewShared(0))
	ctx := context.Background()

	c.Exact(ctx, "21041019")
	c.Exact(ctx, "21041019")
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("同 key 第二次应命中缓存，实际请求 %d 次", got)
	}

	c.Search(ctx, "21041019")
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("exact 与 search 的 key 不应互相命中，实际请求 %d 次", got)
	}

	c.Exact(ctx, "08011100")
	if got := atomic.LoadInt32(calls); got != 3 {
		t.Fatalf("不同参数应重新请求，实际请求 %d 次", got)
	}
}

func TestClient_CachesTransportFailures(t *testing.T) {
	store := cache.NewShared(0)
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(base, &http.Client{Timeout: time.Second}, store)
	c.Exact(context.Background(), "21041019")

	v, ok := store.Get("exact:21041019")
	if !ok {
		t.Fatalf("失败结果同样应写入缓存")
	}
	if v.(Response).Status != StatusTransportFailure {
		t.Fatalf("缓存内容不符合预期：%+v", v)
	}
}

func TestClient_CancelledContextIsNotCached(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"codigo":"21041019","descricao":"Cafe torrado"}`))
	})
	c := New(srv.URL, srv.Client(), cache.NewShared(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := c.Exact(ctx, "21041019"); r.Status != StatusTransportFailure {
		t.Fatalf("已取消的 context 应得到 status 0，实际 %d", r.Status)
	}
	if _, ok := c.Cache.Get("exact:21041019"); ok {
		t.Fatalf("取消导致的失败不应写入缓存")
	}

	if r := c.Exact(context.Background(), "21041019"); !r.OK() {
		t.Fatalf("期望 200，实际 %d", r.Status)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("期望 1 次网络调用，实际 %d", n)
	}
	if _, ok := c.Cache.Get("exact:21041019"); !ok {
		t.Fatalf("成功响应应写入缓存")
	}
}
