package domain

const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusInvalid  = "invalid"
	StatusError    = "error"
)

// Result 是每个输入候选的唯一输出记录（由 Resolver 创建，之后只读）。
type Result struct {
	InputCode   string `json:"input_code"`
	Code        string `json:"code"`
	Description string `json:"description"`
	// Source 是给出该结果的端点 URL（provenance）；invalid / 兜底 not_found 时为空。
	Source string `json:"source"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// StatusRank 返回展示排序用的状态优先级（ok 最前，未知状态排最后）。
func StatusRank(status string) int {
	switch status {
	case StatusOK:
		return 0
	case StatusNotFound:
		return 1
	case StatusInvalid:
		return 2
	case StatusError:
		return 3
	default:
		return 9
	}
}
