// Package logging provides categorized structured logging for sheetflow.
// Each subsystem logs under its own named zap logger; debug output is
// gated by a single switch so interactive shells stay quiet by default.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryDispatch Category = "dispatch" // edit message handling, undo/redo
	CategorySteps    Category = "steps"    // step execution
	CategoryFormula  Category = "formula"  // formula parse/eval
	CategoryImports  Category = "imports"  // file and warehouse reads
	CategoryExports  Category = "exports"  // file writes
	CategorySaved    Category = "saved"    // saved-analysis read/write
	CategoryAPI      Category = "api"      // query handlers
	CategoryCode     Category = "code"     // transpile and optimize
	CategoryCLI      Category = "cli"      // command-line shell
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = map[Category]*zap.SugaredLogger{}
)

// Initialize builds the process logger. When dir is non-empty, JSON
// logs are appended to <dir>/logs/sheetflow.log; otherwise a console
// encoder writes to stderr. Debug enables the debug level.
func Initialize(dir string, debug bool) error {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	var core zapcore.Core
	if dir != "" {
		logsDir := filepath.Join(dir, "logs")
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(logsDir, "sheetflow.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), level)
	}

	mu.Lock()
	defer mu.Unlock()
	base = zap.New(core)
	loggers = map[Category]*zap.SugaredLogger{}
	return nil
}

// Get returns the logger for a category. Safe before Initialize: a
// no-op logger is handed out until one is configured.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	b := base
	if b == nil {
		b = zap.NewNop()
	}
	l := b.Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}
