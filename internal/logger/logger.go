package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	currentLevel  atomic.Int32 // slog.Level cast to int32
	currentFormat atomic.Value // "text" or "json"

	mu      sync.RWMutex
	handler slog.Handler
	slogger *slog.Logger
	output  io.Writer = os.Stdout
)

func init() {
	currentLevel.Store(int32(slog.LevelInfo))
	currentFormat.Store("json")
	reconfigure()
}

func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(currentLevel.Load()))
	format, _ := currentFormat.Load().(string)

	opts := &slog.HandlerOptions{Level: levelVar}
	if format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	slogger = slog.New(handler)
}

// Init configures the package-level logger. Output can be "stdout",
// "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Output != "" {
		mu.Lock()
		var newOutput io.Writer
		switch strings.ToLower(cfg.Output) {
		case "stdout", "":
			newOutput = os.Stdout
		case "stderr":
			newOutput = os.Stderr
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("open log file %q: %w", cfg.Output, err)
			}
			newOutput = f
		}
		output = newOutput
		mu.Unlock()
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	reconfigure()
	return nil
}

// SetLevel updates the minimum logged level. Unrecognized values fall back
// to INFO so a bad config value never silences logging entirely.
func SetLevel(level string) {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	currentLevel.Store(int32(l))
	reconfigure()
}

// SetFormat switches between "text" and "json" output.
func SetFormat(format string) {
	currentFormat.Store(strings.ToLower(format))
	reconfigure()
}

// L returns the package-level slog.Logger, optionally enriched with the
// LogContext carried by ctx.
func L(ctx context.Context) *slog.Logger {
	mu.RLock()
	base := slogger
	mu.RUnlock()

	lc := FromContext(ctx)
	if lc == nil {
		return base
	}

	attrs := make([]any, 0, 12)
	if lc.ConnectionID != "" {
		attrs = append(attrs, KeyConnectionID, lc.ConnectionID)
	}
	if lc.DocumentID != "" {
		attrs = append(attrs, KeyDocumentID, lc.DocumentID)
	}
	if lc.UserID != "" {
		attrs = append(attrs, KeyUserID, lc.UserID)
	}
	if lc.Procedure != "" {
		attrs = append(attrs, KeyProcedure, lc.Procedure)
	}
	if lc.TraceID != "" {
		attrs = append(attrs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		attrs = append(attrs, KeySpanID, lc.SpanID)
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}
