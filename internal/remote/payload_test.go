package remote

import (
	"encoding/json"
	"testing"
)

func TestExtract_FieldVariants(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantCode string
		wantDesc string
	}{
		{"english", `{"code":"21041019","description":"Café torrado"}`, "21041019", "Café torrado"},
		{"portuguese", `{"codigo":"21041019","descricao":"Café torrado"}`, "21041019", "Café torrado"},
		{"empty primary falls back", `{"code":"","codigo":"21041019","description":null,"descricao":"x"}`, "21041019", "x"},
		{"trims", `{"code":"  21041019 ","description":"\tCafé \n"}`, "21041019", "Café"},
		{"numeric code keeps literal", `{"code":21041019}`, "21041019", ""},
		{"zero falls back", `{"code":0,"codigo":"08011100"}`, "08011100", ""},
		{"missing", `{"foo":"bar"}`, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := decodePayload([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode 失败：%v", err)
			}
			code, desc := Extract(p.Items[0])
			if code != tc.wantCode || desc != tc.wantDesc {
				t.Fatalf("got=(%q,%q) want=(%q,%q)", code, desc, tc.wantCode, tc.wantDesc)
			}
		})
	}
}

func TestExtract_NilItem(t *testing.T) {
	code, desc := Extract(nil)
	if code != "" || desc != "" {
		t.Fatalf("nil item 应得到空值：%q %q", code, desc)
	}
}

func TestDecodePayload_Shapes(t *testing.T) {
	p, err := decodePayload([]byte(`{}`))
	if err != nil || p.List || p.Present() {
		t.Fatalf("空对象不应视为有内容：%+v err=%v", p, err)
	}

	p, err = decodePayload([]byte(`[1, {"code":"x"}]`))
	if err != nil || !p.List || len(p.Items) != 2 || p.Items[0] != nil {
		t.Fatalf("非对象元素应保留占位：%+v err=%v", p, err)
	}

	p, err = decodePayload([]byte(`"text"`))
	if err != nil || p.Present() {
		t.Fatalf("标量不应视为有内容：%+v err=%v", p, err)
	}

	if _, err := decodePayload([]byte("  ")); err != ErrEmptyBody {
		t.Fatalf("期望 ErrEmptyBody，实际 %v", err)
	}
}

func TestTruthy_NumberZero(t *testing.T) {
	if truthy(json.Number("0.0")) {
		t.Fatalf("0.0 应为无值")
	}
	if !truthy(json.Number("1")) {
		t.Fatalf("1 应为有值")
	}
}

func TestReasonFromBody(t *testing.T) {
	if got := reasonFromBody("text/plain", []byte("oops")); got != "" {
		t.Fatalf("纯文本不应提取原因：%q", got)
	}
	if got := reasonFromBody("", []byte("<html><body><h1> Bad  Gateway </h1></body></html>")); got != "Bad Gateway" {
		t.Fatalf("无 title 时应回退 h1：%q", got)
	}
	long := make([]byte, 0, 400)
	long = append(long, `{"message":"`...)
	for i := 0; i < 300; i++ {
		long = append(long, 'x')
	}
	long = append(long, `"}`...)
	if got := reasonFromBody("application/json", long); len([]rune(got)) != maxReasonLen {
		t.Fatalf("原因应截断到 %d 字符，实际 %d", maxReasonLen, len([]rune(got)))
	}
}
