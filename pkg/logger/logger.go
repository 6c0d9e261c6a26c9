package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.SugaredLogger

// Audit is an optional dedicated audit logger. Callers may use
// logger.Audit.Infow(...) to emit audit records; if nil, audit events
// fall back to the main logger via AuditEvent.
var Audit *zap.SugaredLogger

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

// Init initializes the global logger at the level given by RELAYBOT_LOG_LEVEL.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger but honors the provided
// `level` string ("debug", "info", "warn", "error"). If level is empty it
// falls back to RELAYBOT_LOG_LEVEL. RELAYBOT_LOG_SINK=file:/path redirects
// output to a file.
func InitWithLevel(level string) {
	lvl := level
	if strings.TrimSpace(lvl) == "" {
		lvl = os.Getenv("RELAYBOT_LOG_LEVEL")
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stdout"}
	if sink := os.Getenv("RELAYBOT_LOG_SINK"); strings.HasPrefix(sink, "file:") {
		cfg.OutputPaths = []string{strings.TrimPrefix(sink, "file:")}
	}

	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		l = zap.NewExample()
	}
	Log = l.Sugar()
}

// UseLogger installs an existing zap logger, mostly for tests.
func UseLogger(l *zap.Logger) {
	if l == nil {
		Log = nil
		return
	}
	Log = l.Sugar()
}

// AttachAuditFileSink configures a JSON-file audit logger writing to
// <auditDir>/audit.log. If the file cannot be opened the function
// returns an error and leaves Audit as nil.
func AttachAuditFileSink(auditDir string) error {
	if auditDir == "" {
		return fmt.Errorf("empty audit dir")
	}
	if fi, err := os.Lstat(auditDir); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("audit dir is a symlink: %s", auditDir)
	}
	fname := filepath.Join(auditDir, "audit.log")
	// rotate oversized files
	if fi, err := os.Stat(fname); err == nil {
		const maxSize = 10 * 1024 * 1024
		if fi.Size() > maxSize {
			bak := fname + "." + fi.ModTime().UTC().Format("20060102T150405Z")
			_ = os.Rename(fname, bak)
		}
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.InfoLevel)
	Audit = zap.New(core).Sugar()
	Audit.Infow("audit_sink_attached", "path", fname)
	return nil
}

// AuditEvent writes to the audit sink when attached, otherwise to the main log.
func AuditEvent(msg string, args ...any) {
	if Audit != nil {
		Audit.Infow(msg, args...)
		return
	}
	Info(msg, append(args, "audit", true)...)
}

// Sync flushes any buffered logs.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
	if Audit != nil {
		_ = Audit.Sync()
	}
}

// Debug logs with key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debugw(msg, args...)
}

// Info logs with key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Infow(msg, args...)
}

// Warn logs with key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warnw(msg, args...)
}

// Error logs with key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Errorw(msg, args...)
}

// LogConfigSummary prints a human-friendly, hyphenated list of startup
// settings to stdout, regardless of the configured level.
func LogConfigSummary(title string, items []string) {
	if len(items) == 0 {
		return
	}
	human := strings.ReplaceAll(title, "_", " ")
	header := "== " + human + " "
	const width = 60
	if len(header) < width {
		header = header + strings.Repeat("=", width-len(header))
	}
	fmt.Fprintln(os.Stdout, header)
	for _, it := range items {
		fmt.Fprintln(os.Stdout, "- "+it)
	}
	fmt.Fprintln(os.Stdout)
}
