package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// Output encodings.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

const defaultZapLevel = zapcore.DebugLevel

func toZapLevel(levelStr string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil || levelStr == "" {
		return defaultZapLevel
	}
	return lvl
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// New builds a logger writing to out. Unknown formats fall back to console.
func New(level, format string, out io.Writer) *Logger {
	core := zapcore.NewCore(
		newEncoder(format),
		zapcore.Lock(zapcore.AddSync(out)),
		zap.NewAtomicLevelAt(toZapLevel(level)),
	)
	return &Logger{
		SugaredLogger: zap.New(core, zap.AddCaller()).Sugar().Named("machine-monitor"),
	}
}

func newZapLogger(level, format string) *Logger {
	return New(level, format, os.Stdout)
}
