package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/John-Robertt/ncmq/internal/app/run"
	"github.com/John-Robertt/ncmq/internal/infra/httpx"
	"github.com/John-Robertt/ncmq/internal/logging"
	"github.com/John-Robertt/ncmq/internal/remote"
)

const (
	// ErrCodeInvalid 表示配置文件/环境变量/CLI 参数无法解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	FileName    = "ncmq.json"
	DotEnvName  = ".env"
	DefaultAddr = ":8080"
)

// 环境变量名。
const (
	EnvBaseURL   = "NCMQ_BASE_URL"
	EnvDelay     = "NCMQ_DELAY"
	EnvUserAgent = "NCMQ_USER_AGENT"
	EnvAddr      = "NCMQ_ADDR"
	EnvLogLevel  = "NCMQ_LOG_LEVEL"
	EnvLogFormat = "NCMQ_LOG_FORMAT"
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证 --delay 0 可以覆盖配置文件中的非零值。
type CLIArgs struct {
	Delay    float64
	DelaySet bool

	BaseURL    string
	BaseURLSet bool

	Addr    string
	AddrSet bool
}

// FileConfig 对应 ncmq.json 的解析结构。
type FileConfig struct {
	BaseURL      string   `json:"base_url"`
	DelaySeconds *float64 `json:"delay_seconds"`
	UserAgent    string   `json:"user_agent"`
	ListenAddr   string   `json:"listen_addr"`
	LogLevel     string   `json:"log_level"`
	LogFormat    string   `json:"log_format"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	BaseURL    string
	Delay      time.Duration
	UserAgent  string
	ListenAddr string
	LogLevel   string
	LogFormat  string
}

// Error 是配置阶段的结构化错误（带 error_code）。
// Source 指出出错的来源：配置文件路径、环境变量名或 CLI 参数名。
type Error struct {
	Code   string
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s：%s 无效：%v", e.Code, e.Source, e.Err)
	}
	return fmt.Sprintf("%s：%s 无效", e.Code, e.Source)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LookupFunc 与 os.LookupEnv 同签名，便于测试注入。
type LookupFunc func(key string) (string, bool)

// LoadEffective 读取 <cwd>/ncmq.json 与 <cwd>/.env（均可选），结合进程环境变量与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 默认值。
// .env 只补充进程环境中缺失的变量，不会覆盖已存在的值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	return LoadEffectiveWithEnv(cwd, cli, os.LookupEnv)
}

// LoadEffectiveWithEnv 与 LoadEffective 相同，但环境变量从 lookup 读取。
func LoadEffectiveWithEnv(cwd string, cli CLIArgs, lookup LookupFunc) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: cfgPath, Err: err}
	}

	envPath := filepath.Join(cwdAbs, DotEnvName)
	dotenv, err := readDotEnv(envPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: envPath, Err: err}
	}

	env := func(key string) string {
		if lookup != nil {
			if v, ok := lookup(key); ok {
				return strings.TrimSpace(v)
			}
		}
		return strings.TrimSpace(dotenv[key])
	}

	return merge(cli, fc, cfgPath, env)
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string, env func(string) string) (EffectiveConfig, error) {
	// base_url：CLI > env > config > 默认
	baseURL, src := remote.DefaultBaseURL, "default"
	switch {
	case cli.BaseURLSet:
		baseURL, src = strings.TrimSpace(cli.BaseURL), "--base-url"
	case env(EnvBaseURL) != "":
		baseURL, src = env(EnvBaseURL), EnvBaseURL
	case strings.TrimSpace(fc.BaseURL) != "":
		baseURL, src = strings.TrimSpace(fc.BaseURL), cfgPath
	}
	if err := validateBaseURL(baseURL); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: src, Err: err}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	// delay：CLI > env > config > 默认；超出 [0, 2]s 截断。
	delay := run.DefaultDelay
	switch {
	case cli.DelaySet:
		d, err := secondsToDuration(cli.Delay)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: "--delay", Err: err}
		}
		delay = d
	case env(EnvDelay) != "":
		f, err := strconv.ParseFloat(env(EnvDelay), 64)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: EnvDelay, Err: fmt.Errorf("不是数字：%q", env(EnvDelay))}
		}
		d, err := secondsToDuration(f)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: EnvDelay, Err: err}
		}
		delay = d
	case fc.DelaySeconds != nil:
		d, err := secondsToDuration(*fc.DelaySeconds)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: cfgPath, Err: fmt.Errorf("delay_seconds：%w", err)}
		}
		delay = d
	}
	delay = run.ClampDelay(delay)

	userAgent := firstNonEmpty(env(EnvUserAgent), fc.UserAgent, httpx.DefaultUserAgent)

	addr := firstNonEmpty(env(EnvAddr), fc.ListenAddr, DefaultAddr)
	if cli.AddrSet {
		addr = strings.TrimSpace(cli.Addr)
		if addr == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: "--addr", Err: errors.New("不能为空")}
		}
	}

	level := strings.ToLower(firstNonEmpty(env(EnvLogLevel), fc.LogLevel, "info"))
	if !logging.ValidLevel(level) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: "log_level", Err: fmt.Errorf("只能是 debug/info/warn/error，实际是 %q", level)}
	}

	format := strings.ToLower(firstNonEmpty(env(EnvLogFormat), fc.LogFormat, "text"))
	if format != "text" && format != "json" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Source: "log_format", Err: fmt.Errorf("只能是 text 或 json，实际是 %q", format)}
	}

	return EffectiveConfig{
		BaseURL:    baseURL,
		Delay:      delay,
		UserAgent:  userAgent,
		ListenAddr: addr,
		LogLevel:   level,
		LogFormat:  format,
	}, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url 必须是绝对 URL：%q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url 必须是 http/https：%q", raw)
	}
	return nil
}

func secondsToDuration(sec float64) (time.Duration, error) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, fmt.Errorf("delay 不是有限数值：%v", sec)
	}
	return run.DelayFromSeconds(sec), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readDotEnv 解析 .env（不存在返回空 map）；不修改进程环境。
func readDotEnv(path string) (map[string]string, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return m, nil
}
