package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeString(path, s string) error {
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func assertNoTemp(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "."+name+".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteAtomic_SuccessReplaceAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out", "consulta_ncm.csv")

	for _, content := range []string{"first", "second"} {
		if err := writeString(p, content); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("读取文件失败：%v", err)
		}
		if string(b) != content {
			t.Fatalf("内容不一致：%q", string(b))
		}
	}
	assertNoTemp(t, filepath.Dir(p), "consulta_ncm.csv")
}

func TestWriteAtomic_WriterErrorKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.xlsx")
	if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	boom := errors.New("boom")
	err := WriteAtomic(p, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("期望 boom，实际=%v", err)
	}

	b, _ := os.ReadFile(p)
	if string(b) != "old" {
		t.Fatalf("原文件不应被改动，实际=%q", string(b))
	}
	assertNoTemp(t, dir, "a.xlsx")
}

func TestWriteAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := writeString(filepath.Join(dir, "a.txt"), "hello"); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	assertNoTemp(t, dir, "a.txt")
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("不应写出最终文件：err=%v", err)
	}
}

func TestWriteAtomic_TargetIsDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.json")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := writeString(target, "x")
	var conflict *PathTypeConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("期望 PathTypeConflictError，实际=%v", err)
	}
}
