package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/ncmq/internal/app/resolve"
	"github.com/John-Robertt/ncmq/internal/app/run"
	"github.com/John-Robertt/ncmq/internal/code"
	"github.com/John-Robertt/ncmq/internal/config"
	"github.com/John-Robertt/ncmq/internal/domain"
	"github.com/John-Robertt/ncmq/internal/export"
	"github.com/John-Robertt/ncmq/internal/infra/cache"
	"github.com/John-Robertt/ncmq/internal/infra/fsx"
	"github.com/John-Robertt/ncmq/internal/infra/httpx"
	"github.com/John-Robertt/ncmq/internal/logging"
	"github.com/John-Robertt/ncmq/internal/remote"
	"github.com/John-Robertt/ncmq/internal/server"
)

const msgNoCodes = "enter at least one NCM code"

// stdio 汇总命令运行所需的进程环境，测试可以整体替换。
type stdio struct {
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	stdoutTTY bool
	stderrTTY bool
	cwd       string
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(1)
	}
	sio := stdio{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdoutTTY: isTTY(os.Stdout),
		stderrTTY: isTTY(os.Stderr),
		cwd:       cwd,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exitCode int
	switch args[0] {
	case "run":
		exitCode = runCmd(ctx, sio, args[1:])
	case "serve":
		exitCode = serveCmd(ctx, sio, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		exitCode = 2
	}
	stop()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func runCmd(ctx context.Context, sio stdio, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage(sio.stdout)
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(sio.stderr, "参数错误：%v\n\n", err)
		printRunUsage(sio.stderr)
		return 2
	}

	eff, err := config.LoadEffective(sio.cwd, config.CLIArgs{
		Delay:      ra.Delay,
		DelaySet:   ra.DelaySet,
		BaseURL:    ra.BaseURL,
		BaseURLSet: ra.BaseURLSet,
	})
	if err != nil {
		fmt.Fprintf(sio.stderr, "%v\n", err)
		return 1
	}
	log := logging.Setup(sio.stderr, eff.LogLevel, eff.LogFormat)

	raw, err := readInput(sio, ra.Input)
	if err != nil {
		fmt.Fprintf(sio.stderr, "读取输入失败：%v\n", err)
		return 1
	}
	codes := code.Normalize(raw)
	if len(codes) == 0 {
		fmt.Fprintln(sio.stderr, msgNoCodes)
		return 2
	}

	var obs run.Observer
	if w, ok := pickProgressWriter(sio); ok {
		obs = newProgressUI(w)
	}

	rr := run.ExecuteWithObserver(ctx, run.Options{Delay: eff.Delay, Logger: log}, newResolver(eff), codes, obs)

	// 被中断的批量不完整：不写导出文件，报告标记 interrupted 并以非 0 退出。
	if rr.Interrupted {
		emitReport(sio, rr)
		fmt.Fprintf(sio.stderr, "已中断：完成 %d/%d，未写出导出文件\n", len(rr.Items), len(codes))
		return 1
	}

	exitCode := 0
	if err := writeExports(ra, rr.Items); err != nil {
		fmt.Fprintf(sio.stderr, "导出失败：%v\n", err)
		exitCode = 1
	}

	emitReport(sio, rr)
	if ra.CSV != "" || ra.XLSX != "" {
		emitLocations(sio, ra)
	}
	if rr.Summary.Error > 0 {
		exitCode = 1
	}
	return exitCode
}

func serveCmd(ctx context.Context, sio stdio, args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printServeUsage(sio.stdout)
			return 0
		}
	}

	sa, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(sio.stderr, "参数错误：%v\n\n", err)
		printServeUsage(sio.stderr)
		return 2
	}

	eff, err := config.LoadEffective(sio.cwd, config.CLIArgs{Addr: sa.Addr, AddrSet: sa.AddrSet})
	if err != nil {
		fmt.Fprintf(sio.stderr, "%v\n", err)
		return 1
	}
	log := logging.Setup(sio.stderr, eff.LogLevel, eff.LogFormat)

	// GIN_MODE 未设置时默认 release，避免 debug 路由表刷屏。
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(newResolver(eff), server.Options{Delay: eff.Delay, Logger: log})
	log.Info("serving", "addr", eff.ListenAddr, "base_url", eff.BaseURL, "delay", eff.Delay)
	if err := srv.ListenAndServe(ctx, eff.ListenAddr); err != nil {
		log.Error("http server stopped", "error", err)
		return 1
	}
	return 0
}

// newResolver 组装 UA/重试 HTTP client + 进程内缓存 + 远端 client + resolver。
func newResolver(eff config.EffectiveConfig) *resolve.Resolver {
	hc := httpx.NewClient(eff.UserAgent)
	store := cache.NewShared(5 * time.Minute)
	return resolve.New(remote.New(eff.BaseURL, hc, store))
}

type runArgs struct {
	Input string

	Delay    float64
	DelaySet bool

	BaseURL    string
	BaseURLSet bool

	CSV  string
	XLSX string
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}
	inputSet := false

	for i := 0; i < len(args); i++ {
		a := args[i]

		name, val, hasVal := splitFlag(a)
		switch name {
		case "--delay", "--base-url", "--csv", "--xlsx":
			if !hasVal {
				if i+1 >= len(args) {
					return runArgs{}, fmt.Errorf("%s 需要一个值", name)
				}
				i++
				val = args[i]
			}
		}

		switch {
		case name == "--delay":
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return runArgs{}, fmt.Errorf("--delay 必须是秒数，实际是 %q", val)
			}
			ra.Delay, ra.DelaySet = f, true
		case name == "--base-url":
			ra.BaseURL, ra.BaseURLSet = val, true
		case name == "--csv":
			if strings.TrimSpace(val) == "" {
				return runArgs{}, fmt.Errorf("--csv 不能为空")
			}
			ra.CSV = val
		case name == "--xlsx":
			if strings.TrimSpace(val) == "" {
				return runArgs{}, fmt.Errorf("--xlsx 不能为空")
			}
			ra.XLSX = val
		case a == "-":
			if inputSet {
				return runArgs{}, fmt.Errorf("重复的输入：%q 与 %q", ra.Input, a)
			}
			ra.Input, inputSet = a, true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if inputSet {
				return runArgs{}, fmt.Errorf("重复的输入：%q 与 %q", ra.Input, a)
			}
			ra.Input, inputSet = a, true
		}
	}

	return ra, nil
}

type serveArgs struct {
	Addr    string
	AddrSet bool
}

func parseServeArgs(args []string) (serveArgs, error) {
	sa := serveArgs{}
	for i := 0; i < len(args); i++ {
		name, val, hasVal := splitFlag(args[i])
		switch {
		case name == "--addr":
			if !hasVal {
				if i+1 >= len(args) {
					return serveArgs{}, fmt.Errorf("--addr 需要一个值")
				}
				i++
				val = args[i]
			}
			sa.Addr, sa.AddrSet = val, true
		case strings.HasPrefix(name, "-"):
			return serveArgs{}, fmt.Errorf("未知参数 %q", args[i])
		default:
			return serveArgs{}, fmt.Errorf("serve 不接受位置参数：%q", args[i])
		}
	}
	return sa, nil
}

// splitFlag 把 "--k=v" 拆成 ("--k", "v", true)；其余原样返回。
func splitFlag(a string) (name, val string, hasVal bool) {
	if !strings.HasPrefix(a, "--") {
		return a, "", false
	}
	if k, v, ok := strings.Cut(a, "="); ok {
		return k, v, true
	}
	return a, "", false
}

// readInput 读取原始输入：空或 "-" 读 stdin，否则读文件。
func readInput(sio stdio, input string) (string, error) {
	var r io.Reader
	if input == "" || input == "-" {
		r = sio.stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		return "", nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeExports 按展示顺序写出 CSV/XLSX（原子替换）。
func writeExports(ra runArgs, items []domain.Result) error {
	sorted := export.Sort(items)
	if ra.CSV != "" {
		if err := fsx.WriteAtomic(ra.CSV, func(w io.Writer) error {
			return export.WriteCSV(w, sorted)
		}); err != nil {
			return fmt.Errorf("%s: %w", ra.CSV, err)
		}
	}
	if ra.XLSX != "" {
		if err := fsx.WriteAtomic(ra.XLSX, func(w io.Writer) error {
			return export.WriteXLSX(w, sorted)
		}); err != nil {
			return fmt.Errorf("%s: %w", ra.XLSX, err)
		}
	}
	return nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  ncmq run [file|-] [--delay s] [--base-url url] [--csv path] [--xlsx path]
  ncmq serve [--addr :8080]

命令：
  run    批量查询 NCM 编码（输入来自文件或 stdin）
  serve  启动 HTTP 服务（粘贴查询 + CSV/XLSX 下载）

使用 "ncmq run --help" 查看详细说明。
`)
}

func printRunUsage(w io.Writer) {
	fmt.Fprintf(w, `用法：
  ncmq run [file|-] [--delay s] [--base-url url] [--csv path] [--xlsx path]

参数：
  file        输入文件；省略或 "-" 时读 stdin（分隔符：逗号/分号/空白/换行）
  --delay     相邻两次查询的间隔秒数，范围 0..2（默认 0.05）
  --base-url  参考服务根路径（默认 %s）
  --csv       写出 CSV（UTF-8 BOM），例如 %s
  --xlsx      写出 XLSX，例如 %s
  -h, --help  显示帮助
`, remote.DefaultBaseURL, export.CSVFileName, export.XLSXFileName)
}

func printServeUsage(w io.Writer) {
	fmt.Fprintf(w, `用法：
  ncmq serve [--addr %s]

参数：
  --addr      监听地址（也可用 NCMQ_ADDR 或 ncmq.json 的 listen_addr）
  -h, --help  显示帮助
`, config.DefaultAddr)
}

func emitReport(sio stdio, rr domain.RunReport) {
	line := "完成：" + export.SummaryLine(rr.Summary)
	if sio.stdoutTTY {
		fmt.Fprintln(sio.stdout, line)
		for _, it := range export.Sort(rr.Items) {
			if it.Status != domain.StatusError && it.Status != domain.StatusInvalid {
				continue
			}
			fmt.Fprintf(sio.stdout, "%s %s: %s\n", it.InputCode, it.Status, it.Detail)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(sio.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(sio.stderr, line)
}

func emitLocations(sio stdio, ra runArgs) {
	if ra.CSV != "" {
		fmt.Fprintf(sio.stderr, "csv: %s\n", ra.CSV)
	}
	if ra.XLSX != "" {
		fmt.Fprintf(sio.stderr, "xlsx: %s\n", ra.XLSX)
	}
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(sio stdio) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if sio.stderrTTY {
		return sio.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if sio.stdoutTTY {
		return sio.stdout, true
	}
	return nil, false
}
