// Package logging provides config-driven categorized logging for jinn.
// Every category is a named zap logger; before Initialize is called all
// loggers are no-ops, so packages can log unconditionally.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategoryAPI       Category = "api"       // HTTP boundary
	CategoryAuth      Category = "auth"      // Principals, tokens, sessions
	CategoryLLM       Category = "llm"       // LLM API calls
	CategorySynthesis Category = "synthesis" // craft/describe/repair/adjust
	CategoryRegistry  Category = "registry"  // Incantation lifecycle
	CategoryLedger    Category = "ledger"    // Mishap fix/retry
	CategoryWish      Category = "wish"      // Intent resolution
	CategorySandbox   Category = "sandbox"   // Artifact loading and execution
	CategoryStore     Category = "store"     // SQLite operations
	CategorySpeech    Category = "speech"    // Transcription and voice synthesis
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // empty = stderr
	Categories map[string]bool // nil = all enabled
}

// Logger wraps a sugared zap logger with its category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
	logFile    *os.File
)

// Initialize builds the root zap logger from options.
// Should be called once at startup.
func Initialize(opts Options) error {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(file)
	}

	Use(zap.New(zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(level))), opts.Categories)

	mu.Lock()
	logFile = file
	mu.Unlock()

	Boot("logging initialized: level=%s format=%s file=%q", level, opts.Format, opts.File)
	return nil
}

// Use installs an already built zap logger as the root, e.g. zap.NewNop()
// or a zaptest logger in tests.
func Use(root *zap.Logger, enabled map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = root
	categories = enabled
	loggers = make(map[Category]*Logger)
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes the root logger and closes the log file (call at shutdown).
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Auth(format string, args ...interface{})      { Get(CategoryAuth).Info(format, args...) }
func AuthDebug(format string, args ...interface{}) { Get(CategoryAuth).Debug(format, args...) }

func LLM(format string, args ...interface{})      { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
func LLMError(format string, args ...interface{}) { Get(CategoryLLM).Error(format, args...) }

func Synthesis(format string, args ...interface{})      { Get(CategorySynthesis).Info(format, args...) }
func SynthesisDebug(format string, args ...interface{}) { Get(CategorySynthesis).Debug(format, args...) }
func SynthesisWarn(format string, args ...interface{})  { Get(CategorySynthesis).Warn(format, args...) }

func Registry(format string, args ...interface{})      { Get(CategoryRegistry).Info(format, args...) }
func RegistryDebug(format string, args ...interface{}) { Get(CategoryRegistry).Debug(format, args...) }
func RegistryWarn(format string, args ...interface{})  { Get(CategoryRegistry).Warn(format, args...) }

func Ledger(format string, args ...interface{})      { Get(CategoryLedger).Info(format, args...) }
func LedgerDebug(format string, args ...interface{}) { Get(CategoryLedger).Debug(format, args...) }

func Wish(format string, args ...interface{})      { Get(CategoryWish).Info(format, args...) }
func WishDebug(format string, args ...interface{}) { Get(CategoryWish).Debug(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Info(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.operation, elapsed)
	return elapsed
}

// StopWithThreshold logs at warn level when the operation was slower than threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s slow: %v (threshold %v)", t.operation, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.operation, elapsed)
	}
	return elapsed
}
