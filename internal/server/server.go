// Package server 提供粘贴 -> 查询 -> 下载的 HTTP 入口（gin）。
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/ncmq/internal/app/run"
	"github.com/John-Robertt/ncmq/internal/code"
	"github.com/John-Robertt/ncmq/internal/domain"
	"github.com/John-Robertt/ncmq/internal/export"
	"github.com/John-Robertt/ncmq/internal/logging"
)

const (
	ErrMsgNoCodes     = "enter at least one NCM code"
	ErrMsgBadBody     = "invalid request body"
	ErrMsgBadFormat   = "format must be csv or xlsx"
	ErrMsgInterrupted = "request cancelled before the batch finished"

	// StatusClientClosed 是客户端在响应前断开时记录的状态码（沿用 nginx 的 499）。
	StatusClientClosed = 499

	shutdownTimeout = 10 * time.Second
)

// LookupRequest 是 /api/v1/lookup 与 /api/v1/export 的请求体。
type LookupRequest struct {
	// Codes 是用户粘贴的原始文本（分隔符任意）。
	Codes string `json:"codes"`
	// Delay 单位秒；缺省时使用服务端配置。
	Delay *float64 `json:"delay"`
}

type Options struct {
	// Delay 是请求未指定 delay 时使用的间隔。
	Delay time.Duration
	// Sleep 透传给 run.Options（测试注入）。
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

type Server struct {
	resolver run.Resolver
	opts     Options
	engine   *gin.Engine
}

func New(r run.Resolver, opts Options) *Server {
	opts.Delay = run.ClampDelay(opts.Delay)
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{resolver: r, opts: opts}
	s.engine = s.routes()
	return s
}

// Handler 返回可直接挂到 http.Server 或 httptest 上的 handler。
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	e := gin.New()
	e.Use(requestID(), accessLog(), recovery())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := e.Group("/api/v1")
	api.POST("/lookup", s.handleLookup)
	api.POST("/export", s.handleExport)
	return e
}

func (s *Server) handleLookup(c *gin.Context) {
	rep, ok := s.runFromRequest(c)
	if !ok {
		return
	}
	rep.Items = export.Sort(rep.Items)
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleExport(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		abortError(c, http.StatusBadRequest, ErrMsgBadFormat)
		return
	}

	rep, ok := s.runFromRequest(c)
	if !ok {
		return
	}
	items := export.Sort(rep.Items)

	var (
		buf         bytes.Buffer
		err         error
		name, ctype string
	)
	switch format {
	case "xlsx":
		err = export.WriteXLSX(&buf, items)
		name, ctype = export.XLSXFileName, export.XLSXContentType
	default:
		err = export.WriteCSV(&buf, items)
		name, ctype = export.CSVFileName, export.CSVContentType
	}
	if err != nil {
		_ = c.Error(err)
		abortError(c, http.StatusInternalServerError, "export failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, ctype, buf.Bytes())
}

// runFromRequest 解析请求体、归一化输入并执行批量查询。返回 false 表示已写出错误响应。
func (s *Server) runFromRequest(c *gin.Context) (domain.RunReport, bool) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		abortError(c, http.StatusBadRequest, ErrMsgBadBody)
		return domain.RunReport{}, false
	}

	codes := code.Normalize(req.Codes)
	if len(codes) == 0 {
		abortError(c, http.StatusBadRequest, ErrMsgNoCodes)
		return domain.RunReport{}, false
	}

	delay := s.opts.Delay
	if req.Delay != nil {
		delay = run.DelayFromSeconds(*req.Delay)
	}

	ctx := c.Request.Context()
	rep := run.Execute(ctx, run.Options{
		Delay:  delay,
		Sleep:  s.opts.Sleep,
		Logger: logging.FromContext(ctx),
	}, s.resolver, codes)
	if rep.Interrupted {
		// 客户端已断开：部分结果不返回，也不导出。
		abortError(c, StatusClientClosed, ErrMsgInterrupted)
		return domain.RunReport{}, false
	}
	return rep, true
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": logging.RequestID(c.Request.Context()),
	})
}

// ListenAndServe 监听 addr 直到 ctx 结束，然后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在已有 listener 上提供服务（测试可传入随机端口）。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.opts.Logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
