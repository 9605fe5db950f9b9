package main

import (
	"fmt"
	"io"
	"os"

	"gitclauder/pkg/config"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger. "auto" picks the console encoder when
// w is a terminal and JSON otherwise.
func newLogger(w io.Writer, level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var enc zapcore.Encoder
	switch format {
	case config.LogFormatConsole:
		enc = consoleEncoder()
	case config.LogFormatJSON:
		enc = jsonEncoder()
	case config.LogFormatAuto, "":
		if isTerminal(w) {
			enc = consoleEncoder()
		} else {
			enc = jsonEncoder()
		}
	default:
		return nil, fmt.Errorf("log format: unknown %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// isTerminal reports whether w is a TTY.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
