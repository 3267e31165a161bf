package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyBody 表示 200 响应体为空。
var ErrEmptyBody = errors.New("empty response body")

// Item 是响应中的单个对象；字段形态不受本系统控制。
type Item map[string]any

// Payload 是 200 响应解析后的数据：单个对象（List=false，Items 恰好一个）或对象列表。
type Payload struct {
	Items []Item
	List  bool
}

// Present 判断 payload 是否“有内容”：非空对象，或非空列表。
func (p Payload) Present() bool {
	if p.List {
		return len(p.Items) > 0
	}
	return len(p.Items) == 1 && len(p.Items[0]) > 0
}

// asList 把单对象 payload 视为一元列表（null/非对象 => 空列表）。
func (p Payload) asList() Payload {
	p.List = true
	return p
}

func decodePayload(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Payload{}, ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Payload{}, err
	}

	switch x := v.(type) {
	case map[string]any:
		return Payload{Items: []Item{Item(x)}}, nil
	case []any:
		items := make([]Item, 0, len(x))
		for _, e := range x {
			// 非对象元素保留占位（提取结果为空），不改变“第一个元素”的位置语义。
			m, _ := e.(map[string]any)
			items = append(items, Item(m))
		}
		return Payload{Items: items, List: true}, nil
	default:
		// null / 字符串 / 数字：视为没有可用数据。
		return Payload{}, nil
	}
}

// Extract 把字段命名不一致的对象归一为 (code, description)。
//
// code 优先读 "code"，为空再读 "codigo"；description 优先读 "description"，为空再读 "descricao"。
// 值转为字符串并 trim；缺失返回空串。
func Extract(item Item) (code, description string) {
	code = firstValue(item, "code", "codigo")
	description = firstValue(item, "description", "descricao")
	return code, description
}

func firstValue(item Item, keys ...string) string {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || !truthy(v) {
			continue
		}
		return strings.TrimSpace(stringify(v))
	}
	return ""
}

// truthy 判断字段值是否“有值”：null、空串、false、0、空列表/对象都视为无值，需要回退到备选字段。
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
