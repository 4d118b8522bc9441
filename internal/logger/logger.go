// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack).
//
// Context
// -------
// DesignWorks writes lifecycle, sync, and error events to one JSON log per
// day under `<dir>/YYYY-MM-DD.log` (default dir `<root>/logs`).  When
// running in an interactive TTY we tee the same events to stdout.
// Rotation, compression, and retention are handled by Lumberjack.
//
// Request- and job-scoped fields (actor, request id, ledger id) travel in a
// context.Context via `With` and `FromContext`, so deep call sites can log
// with the right correlation keys without threading a logger argument.
//
// Usage
// -----
//
//	log, err := logger.New(cfg.Log, cfg.Paths.Root, runningInTTY())
//	if err != nil { … }
//	log.Infow("sweeper online", "batch", cfg.Sync.BatchSize)
//
// Notes
// -----
// • Zap core uses ISO-8601 timestamps and lowercase levels.
// • Errors are written to the same sink via `ErrorOutput`.
// • Oxford commas, two spaces after periods.
package logger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keefcreative/designworks/internal/config"
)

// New returns a *zap.SugaredLogger that writes JSON to the daily file.  When
// tee == true, a console core is also attached.  The logger is installed as
// the process-wide default via zap.ReplaceGlobals.
func New(cfg config.Log, rootDir string, tee bool) (*zap.SugaredLogger, error) {
	logDir := cfg.Dir
	if logDir == "" {
		logDir = filepath.Join(rootDir, "logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	fileName := time.Now().Format("2006-01-02") + ".log"
	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, fileName),
		MaxSize:    50, // MB
		MaxBackups: 7,  // keep last seven files
		MaxAge:     14, // days
		Compress:   true,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileSink), level),
	}

	if tee {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.AddSync(fileSink)),
	).Sugar()

	// Make this the global logger so zap.L() works everywhere after startup.
	zap.ReplaceGlobals(z.Desugar())

	z.Infow("logger online", "tee", tee, "level", level.String(), "dir", logDir)
	return z, nil
}

/*──────────────────────────── context helpers ──────────────────────────────*/

type ctxKey struct{}

// With returns a child context whose logger carries the extra key/value
// pairs on top of whatever FromContext(ctx) already holds.
func With(ctx context.Context, kv ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(kv...))
}

// FromContext returns the logger stored by With, or the global sugared
// logger when none is present.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
		return l
	}
	return zap.S()
}
