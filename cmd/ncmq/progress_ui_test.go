package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/ncmq/internal/app/run"
	"github.com/John-Robertt/ncmq/internal/domain"
)

func TestFormatItemLine(t *testing.T) {
	cases := []struct {
		res  domain.Result
		want []string
	}{
		{
			res:  domain.Result{InputCode: "08011100", Code: "0801.11", Description: "Cocos secos", Status: domain.StatusOK, Detail: "no exact match; returned the first search result"},
			want: []string{"[1/4  25%] 08011100 OK", "-> 0801.11", "Cocos secos", "(no exact match"},
		},
		{
			res:  domain.Result{InputCode: "99999999", Code: "99999999", Status: domain.StatusNotFound},
			want: []string{"99999999 NOT_FOUND"},
		},
		{
			res:  domain.Result{InputCode: "1234", Status: domain.StatusInvalid, Detail: "NCM must have 8 numeric digits (e.g. 21041019)"},
			want: []string{"1234 INVALID: NCM must have"},
		},
		{
			res:  domain.Result{InputCode: "20099000", Status: domain.StatusError, Detail: "HTTP 503 from exact endpoint"},
			want: []string{"20099000 ERROR: HTTP 503 from exact endpoint"},
		},
	}
	for _, tc := range cases {
		got := formatItemLine(run.Progress{Done: 1, Total: 4}, tc.res, 300*time.Millisecond)
		for _, w := range tc.want {
			if !strings.Contains(got, w) {
				t.Fatalf("期望包含 %q，实际=%q", w, got)
			}
		}
	}
}

func TestProgressUI_PrintsEveryItemAndStopsTicker(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)

	ui.OnStart(2, 50*time.Millisecond)
	ui.OnItemDone(run.Progress{Done: 1, Total: 2}, domain.Result{InputCode: "21041019", Status: domain.StatusOK}, time.Millisecond)
	ui.OnItemDone(run.Progress{Done: 2, Total: 2}, domain.Result{InputCode: "1", Status: domain.StatusInvalid, Detail: "x"}, time.Millisecond)

	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.tickerStarted {
		t.Fatalf("全部完成后 ticker 应已停止")
	}
	if ui.ok != 1 || ui.invalid != 1 {
		t.Fatalf("计数不符合预期：ok=%d invalid=%d", ui.ok, ui.invalid)
	}
	out := buf.String()
	if !strings.Contains(out, "codes=2 delay=0.05s") || !strings.Contains(out, "[2/2 100%] 1 INVALID: x") {
		t.Fatalf("输出不符合预期：%q", out)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	got := truncate("Preparações alimentícias", 10)
	if got != "Prepara..." {
		t.Fatalf("期望按 rune 截断，实际=%q", got)
	}
	if truncate("abc", 10) != "abc" {
		t.Fatalf("短字符串不应截断")
	}
}
