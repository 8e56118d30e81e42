// Package logging provides structured logging for the sandbox supervisor.
//
// It is built on go.uber.org/zap, but does not use zap's bundled console
// or JSON encoders: a custom encoder reproduces the fixed on-disk line
// format "LEVEL [unix_ts] [file:line] message\n" that the log file
// contract promises callers, regardless of which logging library backs
// the writer.
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// ctxKey is the context key for the logger.
type ctxKey struct{}

var (
	defaultLogger *zap.Logger
	loggerMu      sync.RWMutex
)

func init() {
	core := zapcore.NewCore(newLineEncoder(), zapcore.AddSync(os.Stderr), zap.NewAtomicLevelAt(zapcore.InfoLevel))
	defaultLogger = zap.New(core, zap.AddCaller())
}

// Config holds the logger configuration.
type Config struct {
	// Debug raises the minimum emitted level to Debug; otherwise Info and
	// above are emitted.
	Debug bool
	// Output is the append-only destination the logger writes lines to.
	// Defaults to os.Stderr.
	Output zapcore.WriteSyncer
}

// NewLogger creates a new structured logger with the given configuration.
func NewLogger(cfg Config) *zap.Logger {
	if cfg.Output == nil {
		cfg.Output = zapcore.AddSync(os.Stderr)
	}
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(newLineEncoder(), cfg.Output, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller())
}

// NewFileLogger opens path for appending and returns a logger writing to
// it, along with a Close function that flushes and closes the file.
func NewFileLogger(path string, debug bool) (*zap.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := NewLogger(Config{Debug: debug, Output: zapcore.AddSync(f)})
	closeFn := func() error {
		_ = logger.Sync()
		return f.Close()
	}
	return logger, closeFn, nil
}

// SetDefault sets the default global logger.
func SetDefault(logger *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the default global logger.
func Default() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// ContextWithLogger returns a new context with the logger attached.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger from context, or the default logger if
// none is attached.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}
	return Default()
}

// lineEncoder implements zapcore.Encoder, producing the fixed line shape
// "LEVEL [unix_ts] [file:line] message\n" required of the log file.
type lineEncoder struct {
	zapcore.Encoder // embedded for the Clone/AddX methods we don't override
}

func newLineEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey: "msg",
		LevelKey:   "level",
		TimeKey:    "ts",
		CallerKey:  "caller",
	}
	return &lineEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{Encoder: e.Encoder.Clone()}
}

func levelName(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "Debug"
	case zapcore.InfoLevel:
		return "Info"
	case zapcore.WarnLevel:
		return "Warning"
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "Fatal"
	default:
		return strings.ToUpper(l.String())
	}
}

// EncodeEntry renders a single log line, ignoring zap's structured fields
// beyond the message since the log file's contract is an unstructured
// text line, not a field-carrying record.
func (e *lineEncoder) EncodeEntry(entry zapcore.Entry, _ []zapcore.Field) (*buffer.Buffer, error) {
	buf := bufferPool.Get()
	caller := "???:0"
	if entry.Caller.Defined {
		caller = fmt.Sprintf("%s:%d", trimCallerPath(entry.Caller.File), entry.Caller.Line)
	}
	fmt.Fprintf(buf, "%s [%d] [%s] %s\n", levelName(entry.Level), entry.Time.Unix(), caller, entry.Message)
	return buf, nil
}

func trimCallerPath(file string) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		return file[i+1:]
	}
	return file
}
