package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kbukum/flowkit/logger"
)

var gormLevels = map[string]gormlogger.LogLevel{
	"silent": gormlogger.Silent,
	"error":  gormlogger.Error,
	"warn":   gormlogger.Warn,
	"info":   gormlogger.Info,
}

// queryLogger sends GORM output through the flowkit logger. Bound values may
// be item payloads, so a statement is reported by its leading verb only.
type queryLogger struct {
	log   *logger.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newQueryLogger(log *logger.Logger, cfg LogConfig) *queryLogger {
	return &queryLogger{
		log:   log.WithComponent("gorm"),
		level: gormLevels[strings.ToLower(cfg.Level)],
		slow:  cfg.SlowQuery,
	}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	var emit func(string, ...map[string]any)
	switch {
	case failed && l.level >= gormlogger.Error:
		emit = l.log.Error
	case slow && l.level >= gormlogger.Warn:
		emit = l.log.Warn
	case l.level >= gormlogger.Info:
		emit = l.log.Debug
	default:
		return
	}

	sql, rows := fc()
	fields := map[string]any{
		"statement":          verb(sql),
		"rows":               rows,
		logger.FieldDuration: elapsed.Milliseconds(),
	}
	switch {
	case failed:
		fields[logger.FieldError] = err.Error()
		emit("Query error", fields)
	case slow:
		emit("Slow query", fields)
	default:
		emit("Query", fields)
	}
}

// verb returns the upper-cased first word of a statement.
func verb(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n("); i > 0 {
		sql = sql[:i]
	}
	return strings.ToUpper(sql)
}
