package remote

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const maxReasonLen = 120

// reasonFromBody 从非 200 响应体中提取一句可读原因，用于结果 detail。
//
// - JSON：读取 BrasilAPI 错误结构中的 message
// - HTML：读取 <title>（CDN/代理错误页通常只有标题有信息量），其次 <h1>
// - 其他：空串
func reasonFromBody(contentType string, body []byte) string {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return ""
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json") || b[0] == '{':
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(b, &e); err != nil {
			return ""
		}
		return truncate(normSpace(e.Message), maxReasonLen)
	case strings.Contains(ct, "html") || b[0] == '<':
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
		if err != nil {
			return ""
		}
		s := normSpace(doc.Find("title").First().Text())
		if s == "" {
			s = normSpace(doc.Find("h1").First().Text())
		}
		return truncate(s, maxReasonLen)
	default:
		return ""
	}
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
