package resolve

import (
	"context"
	"fmt"
	"net/http"

	"github.com/John-Robertt/ncmq/internal/code"
	"github.com/John-Robertt/ncmq/internal/domain"
	"github.com/John-Robertt/ncmq/internal/remote"
)

const (
	DetailNoDescExact   = "no description in exact endpoint response"
	DetailNoDescList    = "no description (list)"
	DetailNoDescSearch  = "no description in search item"
	DetailFallbackFirst = "no exact match; returned the first search result"
	DetailNotFound      = "not found"
	DetailInterrupted   = "lookup interrupted"
)

// Lookup 是 Resolver 依赖的远端能力（*remote.Client 实现它；测试可替换为桩）。
type Lookup interface {
	Exact(ctx context.Context, code domain.Code) remote.Response
	Search(ctx context.Context, term string) remote.Response
	ExactURL(code domain.Code) string
	SearchURL(term string) string
}

// Resolver 把“校验 -> 精确查询 -> 搜索兜底”组合为单个候选的决策流程。
//
// 约束：
// - 每个候选恰好产出一条 Result，不向外抛错
// - 非法候选不触发任何远端调用
// - 精确匹配永远优先于“取搜索结果第一条”的位置兜底
type Resolver struct {
	Remote Lookup
}

func New(l Lookup) *Resolver {
	return &Resolver{Remote: l}
}

// exactFallThrough 是精确查询后仍允许进入搜索阶段的状态。
// 注意：422 只在精确阶段放行；搜索阶段的 422 按意外状态处理。
var exactFallThrough = map[int]bool{
	http.StatusOK:                  true,
	http.StatusNotFound:            true,
	http.StatusUnprocessableEntity: true,
	remote.StatusTransportFailure:  true,
}

var searchFallThrough = map[int]bool{
	http.StatusOK:                 true,
	http.StatusNotFound:           true,
	remote.StatusTransportFailure: true,
}

// Resolve 对单个候选执行完整决策流程。
func (r *Resolver) Resolve(ctx context.Context, candidate string) domain.Result {
	nc, reason := code.Check(candidate)
	if reason != "" {
		return domain.Result{
			InputCode: candidate,
			Status:    domain.StatusInvalid,
			Detail:    reason,
		}
	}

	// 1) 精确查询
	exactURL := r.Remote.ExactURL(nc)
	ex := r.Remote.Exact(ctx, nc)
	if ex.OK() && ex.Payload.Present() {
		if !ex.Payload.List {
			return found(candidate, ex.Payload.Items[0], exactURL, DetailNoDescExact)
		}
		if it, ok := matchCode(ex.Payload.Items, candidate); ok {
			return found(candidate, it, exactURL, DetailNoDescList)
		}
	}
	if !exactFallThrough[ex.Status] {
		return unexpected(candidate, ex, exactURL, "exact")
	}

	// 2) 搜索兜底
	searchURL := r.Remote.SearchURL(candidate)
	se := r.Remote.Search(ctx, candidate)
	if se.OK() && se.Payload.Present() {
		if it, ok := matchCode(se.Payload.Items, candidate); ok {
			return found(candidate, it, searchURL, DetailNoDescSearch)
		}
		res := found(candidate, se.Payload.Items[0], searchURL, "")
		res.Detail = DetailFallbackFirst
		return res
	}
	if !searchFallThrough[se.Status] {
		return unexpected(candidate, se, searchURL, "search")
	}

	// 调用方已取消时两个端点都没有真正被查询，不能判定为 not_found。
	if err := ctx.Err(); err != nil {
		return domain.Result{
			InputCode: candidate,
			Status:    domain.StatusError,
			Detail:    DetailInterrupted + ": " + err.Error(),
		}
	}

	return domain.Result{
		InputCode: candidate,
		Code:      candidate,
		Status:    domain.StatusNotFound,
		Detail:    DetailNotFound,
	}
}

// matchCode 返回第一个提取出的 code 与候选完全相等的条目。
func matchCode(items []remote.Item, candidate string) (remote.Item, bool) {
	for _, it := range items {
		if c, _ := remote.Extract(it); c == candidate {
			return it, true
		}
	}
	return nil, false
}

// found 由条目生成结果：有描述 => ok；无描述 => not_found 并写入 noDesc。
func found(candidate string, it remote.Item, source, noDesc string) domain.Result {
	c, d := remote.Extract(it)
	if c == "" {
		c = candidate
	}
	res := domain.Result{
		InputCode:   candidate,
		Code:        c,
		Description: d,
		Source:      source,
		Status:      domain.StatusOK,
	}
	if d == "" {
		res.Status = domain.StatusNotFound
		res.Detail = noDesc
	}
	return res
}

func unexpected(candidate string, resp remote.Response, source, endpoint string) domain.Result {
	detail := fmt.Sprintf("HTTP %d from %s endpoint", resp.Status, endpoint)
	if resp.Reason != "" {
		detail += ": " + resp.Reason
	}
	return domain.Result{
		InputCode: candidate,
		Source:    source,
		Status:    domain.StatusError,
		Detail:    detail,
	}
}
