package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/ncmq/internal/app/run"
	"github.com/John-Robertt/ncmq/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的逐条进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单条查询长时间未完成（重试/退避中）时定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	total    int
	done     int
	ok       int
	notFound int
	invalid  int
	failed   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(total int, delay time.Duration) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.total = total
	fmt.Fprintf(p.w, "[%s] ncmq run: codes=%d delay=%s\n\n", now.Format("15:04:05"), total, formatShortDuration(delay))
	p.lastPrinted = now

	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnItemDone(pr run.Progress, res domain.Result, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = pr.Done
	p.total = pr.Total

	switch res.Status {
	case domain.StatusOK:
		p.ok++
	case domain.StatusNotFound:
		p.notFound++
	case domain.StatusInvalid:
		p.invalid++
	case domain.StatusError:
		p.failed++
	}

	fmt.Fprintln(p.w, formatItemLine(pr, res, dur))
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func formatItemLine(pr run.Progress, res domain.Result, dur time.Duration) string {
	prefix := fmt.Sprintf("[%d/%d %3.0f%%] %s", pr.Done, pr.Total, pr.Fraction()*100, res.InputCode)

	switch res.Status {
	case domain.StatusOK:
		line := prefix + " OK"
		if res.Code != "" && res.Code != res.InputCode {
			line += " -> " + res.Code
		}
		if d := strings.TrimSpace(res.Description); d != "" {
			line += " " + truncate(d, 80)
		}
		if res.Detail != "" {
			line += " (" + res.Detail + ")"
		}
		return fmt.Sprintf("%s (%s)", line, formatShortDuration(dur))
	case domain.StatusNotFound:
		return fmt.Sprintf("%s NOT_FOUND (%s)", prefix, formatShortDuration(dur))
	case domain.StatusInvalid:
		return fmt.Sprintf("%s INVALID: %s", prefix, res.Detail)
	default:
		return fmt.Sprintf("%s %s: %s (%s)", prefix, strings.ToUpper(res.Status), truncate(res.Detail, 160), formatShortDuration(dur))
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d not_found=%d invalid=%d error=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.notFound, p.invalid, p.failed, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
