package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// DefaultSlowQuery is the elapsed time after which a statement is reported
// as slow.
const DefaultSlowQuery = 200 * time.Millisecond

type requestIDKey struct{}

// WithRequestID tags ctx with the id of the HTTP request it serves, so store
// statements can be matched with the request log line.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// StoreLogger writes gorm's messages and statement traces for the submission
// store to zap.
type StoreLogger struct {
	log       *zap.Logger
	threshold logger.LogLevel
	slow      time.Duration
}

// NewGormZapLogger returns a StoreLogger that passes through gorm messages at
// or above level.
func NewGormZapLogger(log *zap.Logger, level logger.LogLevel) *StoreLogger {
	return &StoreLogger{log: log.Named("store"), threshold: level, slow: DefaultSlowQuery}
}

// WithSlowQuery returns a copy that reports statements slower than d.
// A zero d turns slow statement reports off.
func (s *StoreLogger) WithSlowQuery(d time.Duration) *StoreLogger {
	c := *s
	c.slow = d
	return &c
}

func (s *StoreLogger) LogMode(level logger.LogLevel) logger.Interface {
	c := *s
	c.threshold = level
	return &c
}

func (s *StoreLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	s.message(ctx, logger.Info, zapcore.InfoLevel, msg, args)
}

func (s *StoreLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	s.message(ctx, logger.Warn, zapcore.WarnLevel, msg, args)
}

func (s *StoreLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	s.message(ctx, logger.Error, zapcore.ErrorLevel, msg, args)
}

func (s *StoreLogger) message(ctx context.Context, at logger.LogLevel, lvl zapcore.Level, msg string, args []interface{}) {
	if s.threshold < at {
		return
	}
	if ce := s.log.Check(lvl, fmt.Sprintf(msg, args...)); ce != nil {
		ce.Write(s.context(ctx)...)
	}
}

// Trace reports failed statements as errors and slow ones as warnings. At
// Info every statement is written at debug level. A missing row is a lookup
// result, not a failure.
func (s *StoreLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	var (
		lvl zapcore.Level
		msg string
	)
	elapsed := time.Since(begin)
	switch {
	case s.threshold <= logger.Silent:
		return
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		if s.threshold < logger.Error {
			return
		}
		lvl, msg = zapcore.ErrorLevel, "Statement failed"
	case s.slow > 0 && elapsed > s.slow:
		if s.threshold < logger.Warn {
			return
		}
		lvl, msg = zapcore.WarnLevel, "Slow statement"
	case s.threshold >= logger.Info:
		lvl, msg = zapcore.DebugLevel, "Statement"
	default:
		return
	}

	ce := s.log.Check(lvl, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	fields := append(s.context(ctx),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		zap.String("source", utils.FileWithLineNum()),
	)
	if lvl == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	if lvl == zapcore.WarnLevel {
		fields = append(fields, zap.Duration("slow_threshold", s.slow))
	}
	ce.Write(fields...)
}

func (s *StoreLogger) context(ctx context.Context) []zap.Field {
	if id := RequestID(ctx); id != "" {
		return []zap.Field{zap.String("request_id", id)}
	}
	return nil
}
