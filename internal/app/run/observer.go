package run

import (
	"time"

	"github.com/John-Robertt/ncmq/internal/domain"
)

// Progress 描述批量执行进度（Done 条已完成，共 Total 条）。
type Progress struct {
	Done  int
	Total int
}

// Fraction 返回 [0,1] 的完成比例；Total=0 视为已完成。
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Observer 用于把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件按条目顺序同步发出；批量执行是串行的，不会并发调用。
type Observer interface {
	// OnStart 在第一条解析之前调用。
	OnStart(total int, delay time.Duration)
	// OnItemDone 在每条候选解析完成后调用（用于进度条与逐条输出）。
	OnItemDone(p Progress, res domain.Result, dur time.Duration)
}
