package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseLogger *zap.Logger
	atomicLVL  zap.AtomicLevel
)

func init() {
	atomicLVL = zap.NewAtomicLevelAt(ParseLevel(getEnv("CHAT_LOG_LEVEL", "info")))
	l, err := build(atomicLVL)
	if err != nil {
		l = zap.NewNop()
	}
	baseLogger = l
}

func build(level zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.Config{
		Level:       level,
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build(zap.AddCaller())
}

// L 返回进程级 logger
func L() *zap.Logger { return baseLogger }

// Named 返回带组件名的子 logger，例如 relay、bus
func Named(name string) *zap.Logger { return baseLogger.Named(name) }

// Nop 用于测试或调用方显式关闭日志
func Nop() *zap.Logger { return zap.NewNop() }

// OrDefault 为可选的 logger 参数兜底
func OrDefault(l *zap.Logger) *zap.Logger {
	if l == nil {
		return baseLogger
	}
	return l
}

func SetLevel(level string) { atomicLVL.SetLevel(ParseLevel(level)) }

func Level() zapcore.Level { return atomicLVL.Level() }

func Sync() { _ = baseLogger.Sync() }

func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
