package code

import "github.com/John-Robertt/ncmq/internal/domain"

const (
	ReasonEmpty  = "code is empty"
	ReasonFormat = "NCM must have 8 numeric digits (e.g. 21041019)"
)

// Validate 检查候选是否满足 NCM 格式（恰好 8 位数字，不含任何前后缀或分隔符）。
// 纯函数：返回是否合法以及不合法的原因。
func Validate(s string) (bool, string) {
	_, reason := Check(s)
	return reason == "", reason
}

// Check 与 Validate 相同，但合法时同时返回类型化的 domain.Code（reason 为空）。
func Check(s string) (domain.Code, string) {
	if s == "" {
		return "", ReasonEmpty
	}
	c, ok := domain.ParseCode(s)
	if !ok {
		return "", ReasonFormat
	}
	return c, ""
}
