package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures query logging for the billing store.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LedgerSlowThreshold applies to the tables written inside a
	// reconciliation transaction, where a slow statement holds the row lock.
	LedgerSlowThreshold time.Duration
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:               gormlogger.Warn,
		SlowThreshold:       200 * time.Millisecond,
		LedgerSlowThreshold: 50 * time.Millisecond,
	}
}

// ledgerTables are touched while a subscription row is locked.
var ledgerTables = map[string]struct{}{
	"subscriptions":     {},
	"processed_events":  {},
	"billing_records":   {},
	"invoice_sequences": {},
	"audit_logs":        {},
}

type GormLogger struct {
	cfg GormLoggerConfig
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	if cfg.LedgerSlowThreshold <= 0 {
		cfg.LedgerSlowThreshold = cfg.SlowThreshold
	}
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zap.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zap.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zap.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, floor gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < floor {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Trace logs failed and slow statements. Missing rows are an expected
// lookup result in this codebase and are never logged as errors.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	if err != nil && errors.Is(err, gormlogger.ErrRecordNotFound) {
		err = nil
	}

	sql, rows := fc()
	stmt := describeSQL(sql)
	switch {
	case err != nil && l.cfg.Level >= gormlogger.Error:
		l.logQuery(ctx, stmt, rows, elapsed, err, zap.ErrorLevel)
	case l.slow(stmt, elapsed) && l.cfg.Level >= gormlogger.Warn:
		l.logQuery(ctx, stmt, rows, elapsed, nil, zap.WarnLevel)
	case l.cfg.Level >= gormlogger.Info:
		l.logQuery(ctx, stmt, rows, elapsed, nil, zap.DebugLevel)
	}
}

// ParamsFilter drops bound values; they carry customer and payment refs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) slow(stmt statement, elapsed time.Duration) bool {
	threshold := l.cfg.SlowThreshold
	if _, ok := ledgerTables[stmt.table]; ok {
		threshold = l.cfg.LedgerSlowThreshold
	}
	return threshold > 0 && elapsed > threshold
}

func (l *GormLogger) logQuery(ctx context.Context, stmt statement, rows int64, elapsed time.Duration, err error, level zapcore.Level) {
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", stmt.sql),
		zap.String("operation", stmt.operation),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if stmt.table != "" {
		fields = append(fields, zap.String("table", stmt.table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := FromContext(ctx).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

type statement struct {
	sql       string
	operation string
	table     string
}

func describeSQL(sql string) statement {
	stmt := statement{sql: strings.TrimSpace(sql), operation: "UNKNOWN"}
	tokens := strings.Fields(stmt.sql)
	for i, token := range tokens {
		word := strings.ToUpper(strings.Trim(token, "();"))
		if stmt.operation == "UNKNOWN" {
			switch word {
			case "SELECT", "INSERT", "UPDATE", "DELETE":
				stmt.operation = word
				if word == "UPDATE" && i+1 < len(tokens) {
					stmt.table = tableName(tokens[i+1])
					return stmt
				}
			}
			continue
		}
		if (word == "FROM" || word == "INTO") && i+1 < len(tokens) {
			stmt.table = tableName(tokens[i+1])
			return stmt
		}
	}
	return stmt
}

func tableName(token string) string {
	token = strings.Trim(token, "();`\"")
	if idx := strings.LastIndex(token, "."); idx >= 0 {
		token = token[idx+1:]
	}
	return strings.ToLower(strings.Trim(token, "`\""))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
