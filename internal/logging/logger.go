// Package logging builds the engine's run-scoped structured logger: a
// slog.Handler that fans out to multiple JSON Lines files (and optionally
// stderr), kept close to verbatim from the teacher's logging package.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// MultiError aggregates failures from more than one fan-out handler.
type MultiError struct {
	errors []error
}

func (m *MultiError) Error() string {
	report := make([]string, 0, len(m.errors)+1)
	report = append(report, fmt.Sprintf("%d errors occurred", len(m.errors)))
	for _, err := range m.errors {
		report = append(report, err.Error())
	}
	return strings.Join(report, "; ")
}

// Config controls where and how a run's logs are written.
type Config struct {
	BaseDir        string
	AlsoToStderr   bool
	EnableDebugLog bool
}

// RunLogs is the logger plus the lifecycle hooks a run needs around it.
type RunLogs struct {
	RunID  string
	RunDir string

	Log   *slog.Logger
	Sync  func()
	Close func() error
}

// NewRunLogs creates a run directory and a logger fanning out to it.
func NewRunLogs(cfg Config) (*RunLogs, error) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = "logs"
	}

	ts := time.Now().Format("2006-01-02_15-04-05")
	suffix, err := randomHex(4)
	if err != nil {
		return nil, err
	}
	runID := fmt.Sprintf("%s_%s", ts, suffix)
	runDir := filepath.Join(cfg.BaseDir, runID)

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}

	eventsF, err := os.OpenFile(filepath.Join(runDir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	errorsF, err := os.OpenFile(filepath.Join(runDir, "errors.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = eventsF.Close()
		return nil, err
	}

	var debugF *os.File
	if cfg.EnableDebugLog {
		debugF, err = os.OpenFile(filepath.Join(runDir, "debug.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = eventsF.Close()
			_ = errorsF.Close()
			return nil, err
		}
	}

	eventH := slog.NewJSONHandler(eventsF, &slog.HandlerOptions{Level: slog.LevelInfo})
	errorH := slog.NewJSONHandler(errorsF, &slog.HandlerOptions{Level: slog.LevelWarn})

	hs := []slog.Handler{eventH, errorH}

	if cfg.EnableDebugLog {
		hs = append(hs, slog.NewJSONHandler(debugF, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if cfg.AlsoToStderr {
		hs = append(hs, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	mh := NewMultiHandler(hs...)
	base := slog.New(mh).With(
		slog.String("run_id", runID),
		slog.String("run_dir", runDir),
	)

	syncFn := func() {
		_ = eventsF.Sync()
		_ = errorsF.Sync()
		if debugF != nil {
			_ = debugF.Sync()
		}
		_ = os.Stdout.Sync()
		_ = os.Stderr.Sync()
	}

	closeFn := func() error {
		var errs []error
		if err := eventsF.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := errorsF.Close(); err != nil {
			errs = append(errs, err)
		}
		if debugF != nil {
			if err := debugF.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if errs != nil {
			return &MultiError{errs}
		}
		return nil
	}

	base.Info("run_start",
		slog.String("type", "run_start"),
		slog.String("ts", time.Now().Format(time.RFC3339Nano)),
		slog.Bool("debug_enabled", cfg.EnableDebugLog),
	)

	return &RunLogs{
		RunID:  runID,
		RunDir: runDir,
		Log:    base,
		Sync:   syncFn,
		Close:  closeFn,
	}, nil
}

// RecoverAndLog is a panic guard for the top-level goroutine boundary; it is
// never used inside per-tick logic, which absorbs its own runtime errors.
func RecoverAndLog(log *slog.Logger, syncFn func()) {
	if r := recover(); r != nil {
		log.Error("panic",
			slog.String("type", "panic"),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())),
		)
		if syncFn != nil {
			syncFn()
		}
		panic(r)
	}
}

func randomHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// MultiHandler fans a slog.Record out to every wrapped handler, cloning the
// record per handler since some handlers consume attrs destructively.
type MultiHandler struct {
	mu       sync.Mutex
	handlers []slog.Handler
}

func NewMultiHandler(h ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: h}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if errs != nil {
		return &MultiError{errs}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}
