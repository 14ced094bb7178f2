package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// FormatPretty is an alias for the console format.
const FormatPretty = "pretty"

// Logger wraps zerolog.Logger with flowkit's scoping helpers.
type Logger struct {
	logger  zerolog.Logger
	service string
}

// New builds the process logger. JSON output carries a "service" field;
// console output tags each line with the service's first three letters.
func New(cfg *Config, serviceName string) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := outputWriter(cfg.Output)

	zc := zerolog.New(out).With().Str("service", serviceName)
	if f := strings.ToLower(cfg.Format); f == "console" || f == FormatPretty {
		zc = zerolog.New(consoleWriter(out, cfg.NoColor, serviceName)).With()
	}
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	if cfg.Caller {
		zc = zc.Caller()
	}
	return &Logger{logger: zc.Logger().Level(level), service: serviceName}
}

// newWithWriter creates a JSON logger writing to w.
func newWithWriter(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &Logger{logger: zerolog.New(w).Level(lvl)}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) derive(build func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{logger: build(l.logger.With()).Logger(), service: l.service}
}

// WithContext tags l with the trace and span ids of the span in ctx. Without
// a recording span l is returned as is.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.derive(func(zc zerolog.Context) zerolog.Context {
		return zc.Str(FieldTraceID, sc.TraceID().String()).Str(FieldSpanID, sc.SpanID().String())
	})
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(func(zc zerolog.Context) zerolog.Context { return zc.Str(FieldComponent, name) })
}

// WithRun tags l with a run id and, when known, its workflow.
func (l *Logger) WithRun(runID, workflowID string) *Logger {
	return l.derive(func(zc zerolog.Context) zerolog.Context {
		zc = zc.Str(FieldRunID, runID)
		if workflowID != "" {
			zc = zc.Str(FieldWorkflowID, workflowID)
		}
		return zc
	})
}

func (l *Logger) WithNode(nodeID, kind string) *Logger {
	return l.derive(func(zc zerolog.Context) zerolog.Context {
		return zc.Str(FieldNodeID, nodeID).Str(FieldNodeKind, kind)
	})
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.derive(func(zc zerolog.Context) zerolog.Context { return zc.Fields(fields) })
}

func (l *Logger) WithError(err error) *Logger {
	return l.derive(func(zc zerolog.Context) zerolog.Context { return zc.Err(err) })
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { emit(l.logger.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any) { emit(l.logger.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any) { emit(l.logger.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { emit(l.logger.Error(), msg, fields) }

// emit is a no-op for a disabled level; zerolog hands back a nil event.
func emit(event *zerolog.Event, msg string, fields []map[string]any) {
	if event == nil {
		return
	}
	for _, fm := range fields {
		event.Fields(fm)
	}
	event.Msg(msg)
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}

func consoleWriter(out io.Writer, noColor bool, serviceName string) zerolog.ConsoleWriter {
	tag := ""
	if len(serviceName) >= 3 {
		tag = "[" + strings.ToUpper(serviceName[:3]) + "]"
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
		FormatLevel: func(i any) string {
			lvl := strings.ToUpper(fmt.Sprint(i))
			return tag + "[" + lvl[:min(3, len(lvl))] + "]"
		},
		FormatFieldName: func(i any) string { return fmt.Sprint(i) + ":" },
	}
}
