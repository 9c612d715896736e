package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/telemetry/internal/observability/context"
	"github.com/smallbiznis/telemetry/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "cid-1")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "cid-1", fields["correlation_id"])
		assert.NotContains(t, fields, "trace_id")
	}
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestWithBatch(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithBatch(zap.New(core), "b1", 3).Info("batch")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "b1", fields["batch_id"])
	assert.EqualValues(t, 3, fields["batch_size"])
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "INSERT", operationFromSQL(`INSERT INTO "traits" ("id") VALUES (1)`))
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "traits", tableFromSQL(`INSERT INTO "traits" ("id") VALUES (1)`))
	assert.Equal(t, "unique_names", tableFromSQL("SELECT * FROM `unique_names` WHERE `key` = ?"))
	assert.Equal(t, "", tableFromSQL("SAVEPOINT sp1"))
}

func TestGormLoggerTreatsRaceOutcomesAsDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gl := NewGormLogger(zap.New(core), DefaultGormLoggerConfig(false))
	query := func() (string, int64) { return "INSERT INTO unique_names (id, key) VALUES (?, ?)", 0 }

	gl.Trace(context.Background(), time.Now(), query, gorm.ErrDuplicatedKey)
	assert.Empty(t, logs.All())

	gl.Trace(context.Background(), time.Now(), query, errors.New("disk I/O error"))
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zap.ErrorLevel, entries[0].Level)
		assert.Equal(t, "unique_names", entries[0].ContextMap()["table"])
	}
}
