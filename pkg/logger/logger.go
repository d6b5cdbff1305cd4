package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 定义日志初始化配置
// Level 支持 debug/info/warn/error，Environment 支持 prod/dev 等
// Format 为 json 时强制 JSON 输出，File 非空时同时写入滚动日志文件
type Config struct {
	Level       string
	Environment string
	Format      string
	File        string
	WithSource  bool
}

var (
	global *slog.Logger
	once   sync.Once
)

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

func useJSON(cfg Config) bool {
	env := strings.ToLower(cfg.Environment)
	return strings.ToLower(cfg.Format) == "json" || env == "prod" || env == "production"
}

// New 根据配置创建新的 slog.Logger，不设置全局实例
func New(cfg Config) (*slog.Logger, error) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, newRotatingFile(cfg.File))
	}
	return NewWithWriter(cfg, out)
}

// NewWithWriter 输出到指定 writer，便于测试捕获
func NewWithWriter(cfg Config, out io.Writer) (*slog.Logger, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource}
	var handler slog.Handler
	if useJSON(cfg) {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler), nil
}

// newRotatingFile 创建按大小滚动的日志文件
func newRotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// Init 初始化全局日志实例，重复调用将返回首次创建的 logger
func Init(cfg Config) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		global, initErr = New(cfg)
	})
	return global, initErr
}

// L 返回已初始化的全局 logger，未初始化时 panic
func L() *slog.Logger {
	if global == nil {
		panic("logger.Init must be called before logger.L")
	}
	return global
}

// Or 返回 l，l 为 nil 时返回全局 logger，全局也未初始化时返回 slog.Default()
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	if global != nil {
		return global
	}
	return slog.Default()
}

// SweepSummary 积压巡检结果摘要
type SweepSummary struct {
	Trigger    string // cron/manual/startup
	Total      int
	Updated    int
	Unchanged  int
	Failed     int
	Injected   int
	DurationMs int64
}

// LogSweep 记录积压巡检的结构化日志
// 有失败条目时以 warn 级别输出，批量失败（err 非空）以 error 级别输出
func LogSweep(logger *slog.Logger, s SweepSummary, err error) {
	attrs := []slog.Attr{
		slog.String("component", "backlog_sweep"),
		slog.String("trigger", s.Trigger),
		slog.Int("total", s.Total),
		slog.Int("updated", s.Updated),
		slog.Int("unchanged", s.Unchanged),
		slog.Int("failed", s.Failed),
		slog.Int("injected", s.Injected),
		slog.Int64("duration_ms", s.DurationMs),
	}

	switch {
	case err != nil:
		attrs = append(attrs, slog.String("error", err.Error()))
		logger.LogAttrs(context.Background(), slog.LevelError, "Backlog sweep failed", attrs...)
	case s.Failed > 0:
		logger.LogAttrs(context.Background(), slog.LevelWarn, "Backlog sweep finished with failures", attrs...)
	default:
		logger.LogAttrs(context.Background(), slog.LevelInfo, "Backlog sweep finished", attrs...)
	}
}
