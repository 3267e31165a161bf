package domain

import (
	"encoding/json"
	"time"
)

// RunReport 是一次批量查询的对外稳定输出（stdout JSON / HTTP 响应）。
type RunReport struct {
	RunID        string  `json:"run_id"`
	DelaySeconds float64 `json:"delay_seconds"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Interrupted 表示调用方取消了批量：Items 只包含取消前完成的条目。
	Interrupted bool `json:"interrupted"`

	Summary Summary  `json:"summary"`
	Items   []Result `json:"items"`
}

type Summary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	NotFound int `json:"not_found"`
	Invalid  int `json:"invalid"`
	Error    int `json:"error"`
}

// Summarize 按状态统计结果条数。
func Summarize(items []Result) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusOK:
			s.OK++
		case StatusNotFound:
			s.NotFound++
		case StatusInvalid:
			s.Invalid++
		case StatusError:
			s.Error++
		}
	}
	return s
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 items 计算得出
//
// 注意：items 保持输入顺序，展示排序由 export.Sort 负责。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []Result{}
	}
	r.Summary = Summarize(r.Items)
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
