package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{`SELECT * FROM "subscriptions" WHERE id = $1`, "SELECT", "subscriptions"},
		{"INSERT INTO `billing_records` (`id`) VALUES (?)", "INSERT", "billing_records"},
		{`UPDATE "public"."subscriptions" SET status = $1`, "UPDATE", "subscriptions"},
		{`DELETE FROM processed_events`, "DELETE", "processed_events"},
		{`WITH due AS (SELECT id FROM subscriptions) SELECT * FROM due`, "SELECT", "subscriptions"},
		{`PRAGMA foreign_keys = ON`, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		stmt := describeSQL(tc.sql)
		assert.Equal(t, tc.operation, stmt.operation, tc.sql)
		assert.Equal(t, tc.table, stmt.table, tc.sql)
	}
}

func TestTraceUsesTighterThresholdForLedgerTables(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(GormLoggerConfig{
		Level:               gormlogger.Warn,
		SlowThreshold:       time.Second,
		LedgerSlowThreshold: 10 * time.Millisecond,
	})

	begin := time.Now().Add(-50 * time.Millisecond)
	l.Trace(context.Background(), begin, func() (string, int64) {
		return `SELECT * FROM plans`, 2
	}, nil)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), begin, func() (string, int64) {
		return `UPDATE subscriptions SET version = 2`, 1
	}, nil)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, "subscriptions", entry.ContextMap()["table"])
	assert.Equal(t, "UPDATE", entry.ContextMap()["operation"])
}

func TestTraceSkipsRecordNotFound(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM subscriptions`, 0
	}, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM subscriptions`, 0
	}, errors.New("database is locked"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
}

func TestLogModeSilent(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger(DefaultGormLoggerConfig()).LogMode(gormlogger.Silent)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT 1`, 0
	}, errors.New("boom"))
	l.Error(context.Background(), "ignored")
	assert.Equal(t, 0, logs.Len())
}
