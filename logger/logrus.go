package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/entmap/entmap/utils"
	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Interface using logrus
type LogrusLogger struct {
	Logger        *logrus.Logger
	LogLevel      LogLevel
	SlowThreshold time.Duration
	Parameterized bool
}

// NewLogrusLogger creates a new logger using logrus
func NewLogrusLogger(logger *logrus.Logger, config Config) Interface {
	return &LogrusLogger{
		Logger:        logger,
		LogLevel:      config.LogLevel,
		SlowThreshold: config.SlowThreshold,
		Parameterized: config.ParameterizedQueries,
	}
}

// LogMode sets the log level
func (l *LogrusLogger) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info logs info messages
func (l *LogrusLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.entry(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

// Warn logs warning messages
func (l *LogrusLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.entry(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

// Error logs error messages
func (l *LogrusLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.entry(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *LogrusLogger) entry(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("file", utils.FileWithLineNum())
	if ctx != nil {
		entry = entry.WithContext(ctx)
	}
	return entry
}

// Trace logs backend operation details
func (l *LogrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (op string, rowsAffected int64), err error) {
	if l.LogLevel <= Silent {
		return
	}

	elapsed := time.Since(begin)
	op, rows := fc()

	fields := logrus.Fields{
		"duration": fmt.Sprintf("%.3fms", float64(elapsed.Nanoseconds())/1e6),
		"op":       op,
	}

	if rows != -1 {
		fields["rows"] = rows
	}

	entry := l.entry(ctx)

	switch {
	case err != nil && l.LogLevel >= Error:
		fields["error"] = err.Error()
		entry.WithFields(fields).Error("operation failed")

	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= Warn:
		fields["slow_threshold"] = l.SlowThreshold.String()
		entry.WithFields(fields).Warn("slow operation")

	case l.LogLevel >= Info:
		entry.WithFields(fields).Info("operation executed")
	}
}

// ParamsFilter filters statement parameters
func (l *LogrusLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	if l.Parameterized {
		return sql, nil
	}
	return sql, params
}
