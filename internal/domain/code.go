package domain

import (
	"regexp"
)

// Code 是校验通过的 NCM 编码（恰好 8 位十进制数字，如 21041019）。
//
// 远端精确查询（remote.Client.Exact）只接受 Code；候选字符串在校验前一律按 string 传递。
type Code string

var codeRE = regexp.MustCompile(`^[0-9]{8}$`)

// ParseCode 校验候选字符串是否为合法 NCM。
// 不做 trim：前后空白、分隔符（如 2104.10.19）都视为非法。
func ParseCode(s string) (Code, bool) {
	if !codeRE.MatchString(s) {
		return "", false
	}
	return Code(s), true
}
