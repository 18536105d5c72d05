// Package logging provides structured logging with per-call step tracking
// for the chat orchestrator.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// contextKey is used for storing logger in context.
type contextKey struct{}

// Logger wraps slog.Logger with chat-call-specific functionality.
type Logger struct {
	*slog.Logger
	call      string
	startTime time.Time
	stepNum   int
}

// OperationError represents an error that occurred during one step of a
// chat call (catalogue fetch, partition, dispatch, discovery rebuild, ...).
type OperationError struct {
	Call    string
	Step    string
	StepNum int
	Op      string
	Err     error
	Stack   string
}

func (e *OperationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[%s] step %d (%s) %s: %v", e.Call, e.StepNum, e.Step, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] step %d (%s): %v", e.Call, e.StepNum, e.Step, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Format implements fmt.Formatter for detailed error output.
func (e *OperationError) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s\n\nStack trace:\n%s", e.Error(), e.Stack)
			return
		}
		fallthrough
	default:
		fmt.Fprint(f, e.Error())
	}
}

// New creates a new Logger with the specified output format.
func New(jsonFormat bool) *Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: "ts", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
			}
			return a
		},
	}
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New(false)
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		call:      l.call,
		startTime: l.startTime,
		stepNum:   l.stepNum,
	}
}

// WithContext returns a new context with the logger attached.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext retrieves the logger from context, or returns the default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

// StartCall creates a new logger scoped to one chat call.
func (l *Logger) StartCall(callID string, attrs ...any) *Logger {
	newLogger := &Logger{
		Logger:    l.Logger.With(append([]any{"call", callID}, attrs...)...),
		call:      callID,
		startTime: time.Now(),
		stepNum:   0,
	}
	newLogger.Info("chat call started")
	return newLogger
}

// Step logs a call step and returns a function to log step completion.
func (l *Logger) Step(stepName string, attrs ...any) func(error) {
	l.stepNum++
	stepStart := time.Now()
	stepLogger := l.With(append([]any{"step", stepName, "step_num", l.stepNum}, attrs...)...)
	stepLogger.Info("step started")

	return func(err error) {
		elapsed := time.Since(stepStart)
		if err != nil {
			stepLogger.Error("step failed",
				"error", err.Error(),
				"elapsed_ms", elapsed.Milliseconds(),
			)
		} else {
			stepLogger.Info("step completed",
				"elapsed_ms", elapsed.Milliseconds(),
			)
		}
	}
}

// StepInfo logs a step with an additional info message.
func (l *Logger) StepInfo(stepName string, msg string, attrs ...any) {
	l.stepNum++
	l.With(append([]any{"step", stepName, "step_num", l.stepNum}, attrs...)...).Info(msg)
}

// EndCall logs chat call completion.
func (l *Logger) EndCall(err error) {
	elapsed := time.Since(l.startTime)
	if err != nil {
		l.Error("chat call failed",
			"error", err.Error(),
			"elapsed_ms", elapsed.Milliseconds(),
			"total_steps", l.stepNum,
		)
	} else {
		l.Info("chat call completed",
			"elapsed_ms", elapsed.Milliseconds(),
			"total_steps", l.stepNum,
		)
	}
}

// WrapError wraps an error with call context and a stack trace.
func (l *Logger) WrapError(step, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{
		Call:    l.call,
		Step:    step,
		StepNum: l.stepNum,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// captureStack captures the current stack trace, skipping the specified number of frames.
func captureStack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if strings.Contains(frame.File, "runtime/") {
			if !more {
				break
			}
			continue
		}
		fmt.Fprintf(&sb, "  %s\n    %s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// Attrs is a helper to create attribute slices.
func Attrs(keyValues ...any) []any {
	return keyValues
}
