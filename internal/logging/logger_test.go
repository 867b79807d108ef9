package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestInitWritesPerLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := Init(config.LoggingConfig{Directory: dir, Level: "info", MaxSize: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("submission stored")
	log.Error("storage unavailable")
	_ = log.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	joined := strings.Join(names, " ")
	assert.Contains(t, joined, "-info.log")
	assert.Contains(t, joined, "-error.log")
	assert.NotContains(t, joined, "-debug.log")
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormZapLogger(zap.New(core), logger.Warn)

	sql := func() (string, int64) { return "SELECT * FROM submissions", 1 }

	gl.Trace(context.Background(), time.Now(), sql, nil)
	assert.Equal(t, 0, logs.Len(), "fast statements are not logged at warn level")

	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	require.Equal(t, 1, logs.Len())
	failed := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, failed.Level)
	assert.Equal(t, "store", failed.LoggerName)
	assert.Equal(t, "SELECT * FROM submissions", failed.ContextMap()["sql"])
	assert.Equal(t, "disk I/O error", failed.ContextMap()["error"])

	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
	assert.Equal(t, "Slow statement", logs.All()[1].Message)

	gl.WithSlowQuery(0).Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	assert.Equal(t, 2, logs.Len(), "slow reports can be turned off")

	silent := gl.LogMode(logger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())

	verbose := gl.LogMode(logger.Info)
	verbose.Trace(context.Background(), time.Now(), sql, nil)
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[2].Level)
}

func TestGormLoggerMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormZapLogger(zap.New(core), logger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "migrated %d tables", 1)
	assert.Equal(t, 0, logs.Len(), "info is below the warn threshold")

	gl.Warn(ctx, "column %s is deprecated", "gender")
	gl.Error(ctx, "lost connection after %s", "3s")
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, "column gender is deprecated", logs.All()[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
	assert.Equal(t, "lost connection after 3s", logs.All()[1].Message)

	gl.LogMode(logger.Error).Warn(ctx, "dropped")
	assert.Equal(t, 2, logs.Len())
}

func TestGormLoggerRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormZapLogger(zap.New(core), logger.Warn)

	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))

	gl.Trace(ctx, time.Now(), func() (string, int64) { return "DELETE FROM submissions", 0 }, errors.New("locked"))
	gl.Warn(ctx, "retrying")
	require.Equal(t, 2, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "req-42", e.ContextMap()["request_id"])
	}
}
