package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/ncmq/internal/domain"
)

const (
	// DefaultDelay 是两次解析之间的默认间隔（避免在长列表上触发限流）。
	DefaultDelay = 50 * time.Millisecond
	// MaxDelay 是允许配置的最大间隔。
	MaxDelay = 2 * time.Second
)

// Resolver 是单条候选的解析能力（*resolve.Resolver 实现它）。
type Resolver interface {
	Resolve(ctx context.Context, candidate string) domain.Result
}

type Options struct {
	// Delay 是相邻两次解析之间的等待时间，超出 [0, MaxDelay] 会被截断。
	Delay time.Duration

	// Sleep 用于间隔等待；nil 时使用真实计时器。测试可替换为记录型实现。
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// ClampDelay 把间隔截断到 [0, MaxDelay]。
func ClampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// DelayFromSeconds 把秒数转换为间隔并截断到 [0, MaxDelay]。
// 先在 float 域截断，避免超大值转换 time.Duration 时溢出；NaN 视为 0。
func DelayFromSeconds(sec float64) time.Duration {
	if !(sec > 0) {
		return 0
	}
	if sec >= MaxDelay.Seconds() {
		return MaxDelay
	}
	return time.Duration(sec * float64(time.Second))
}

// Execute 串行解析全部候选，并返回对外稳定的 RunReport。
func Execute(ctx context.Context, opts Options, r Resolver, codes []string) domain.RunReport {
	return ExecuteWithObserver(ctx, opts, r, codes, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度（由上层决定是否启用）。
//
// 约束：
// - 严格串行，结果与输入一一对应且顺序一致
// - 间隔只出现在相邻两条之间；Delay=0 时完全跳过
// - 单条失败只体现在该条 Result 上，不会中止批量
// - ctx 取消会中止批量：取消期间得到的结果不可信，丢弃并标记 Interrupted
func ExecuteWithObserver(ctx context.Context, opts Options, r Resolver, codes []string, obs Observer) domain.RunReport {
	delay := ClampDelay(opts.Delay)
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	rr := domain.RunReport{
		RunID:        uuid.NewString(),
		DelaySeconds: delay.Seconds(),
		StartedAt:    time.Now().UTC(),
		Items:        make([]domain.Result, 0, len(codes)),
	}
	log = log.With("run_id", rr.RunID)
	log.Info("batch started", "total", len(codes), "delay", delay)

	if obs != nil {
		obs.OnStart(len(codes), delay)
	}

	for i, c := range codes {
		if ctx.Err() != nil {
			rr.Interrupted = true
			break
		}
		oneStarted := time.Now()
		res := r.Resolve(ctx, c)
		if ctx.Err() != nil {
			rr.Interrupted = true
			break
		}
		rr.Items = append(rr.Items, res)

		if obs != nil {
			obs.OnItemDone(Progress{Done: i + 1, Total: len(codes)}, res, time.Since(oneStarted))
		}
		log.Debug("item resolved", "input", c, "status", res.Status, "detail", res.Detail)

		if delay > 0 && i < len(codes)-1 {
			if err := sleep(ctx, opts.Sleep, delay); err != nil {
				log.Debug("delay interrupted", "error", err)
			}
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	if rr.Interrupted {
		log.Warn("batch interrupted", "done", len(rr.Items), "total", len(codes), "error", context.Cause(ctx))
	}
	log.Info("batch finished",
		"ok", rr.Summary.OK,
		"not_found", rr.Summary.NotFound,
		"invalid", rr.Summary.Invalid,
		"error", rr.Summary.Error,
		"elapsed", rr.FinishedAt.Sub(rr.StartedAt),
	)
	return rr
}

func sleep(ctx context.Context, fn func(context.Context, time.Duration) error, d time.Duration) error {
	if fn != nil {
		return fn(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
