package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LOG_LEVEL", "DB_LOG_LEVEL", "DB_SLOW_QUERY_MS", "DB_LEDGER_SLOW_QUERY_MS", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "DEPLOYMENT_ENV"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "nestbill", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())

	gl := cfg.GormLogger()
	assert.Equal(t, gormlogger.Warn, gl.Level)
	assert.Equal(t, 200*time.Millisecond, gl.SlowThreshold)
	assert.Equal(t, 50*time.Millisecond, gl.LedgerSlowThreshold)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("DB_SLOW_QUERY_MS", "750")
	t.Setenv("DB_LEDGER_SLOW_QUERY_MS", "not-a-number")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_ENABLED", "")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.True(t, cfg.Debug())
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)

	gl := cfg.GormLogger()
	assert.Equal(t, gormlogger.Silent, gl.Level)
	assert.Equal(t, 750*time.Millisecond, gl.SlowThreshold)
	assert.Equal(t, 50*time.Millisecond, gl.LedgerSlowThreshold)
}
