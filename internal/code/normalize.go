package code

import (
	"strings"
)

// 粘贴文本中允许出现的分隔符；全部先替换成逗号再统一切分。
var separatorReplacer = strings.NewReplacer(
	";", ",",
	"\n", ",",
	"\r", ",",
	"\t", ",",
	" ", ",",
)

// Normalize 把自由粘贴的文本切分为候选编码列表。
//
// - 分隔符：逗号、分号、空格、制表符、换行
// - 每段 trim 后丢弃空串
// - 去重并保留首次出现的顺序
//
// 空输入返回空切片（非 nil），不会报错。
func Normalize(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}

	parts := strings.Split(separatorReplacer.Replace(raw), ",")
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
