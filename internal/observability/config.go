package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/nestbill/internal/config"
	obslogger "github.com/smallbiznis/nestbill/internal/observability/logger"
	gormlogger "gorm.io/gorm/logger"
)

const defaultServiceName = "nestbill"

// Config holds observability settings. Values come from the environment and
// fall back to the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// SQL logging. Ledger thresholds apply to statements issued while a
	// subscription row is locked.
	SQLLogLevel     string
	SlowQuery       time.Duration
	LedgerSlowQuery time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	env := environ(os.Getenv)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	endpoint := env.str("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := strings.ToLower(env.str("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	if traces := env.str("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		protocol = strings.ToLower(traces)
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          env.str("DEPLOYMENT_ENV", cfg.Environment),
		Version:              env.str("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:             strings.ToLower(env.str("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(env.str("LOG_FORMAT", "json")),
		SQLLogLevel:          strings.ToLower(env.str("DB_LOG_LEVEL", "warn")),
		SlowQuery:            env.millis("DB_SLOW_QUERY_MS", 200*time.Millisecond),
		LedgerSlowQuery:      env.millis("DB_LEDGER_SLOW_QUERY_MS", 50*time.Millisecond),
		OtelEnabled:          env.boolean("OTEL_ENABLED", endpoint != ""),
		OtelExporterEndpoint: endpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    env.float("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// GormLogger maps the SQL settings onto the query logger.
func (c Config) GormLogger() obslogger.GormLoggerConfig {
	out := obslogger.DefaultGormLoggerConfig()
	switch c.SQLLogLevel {
	case "silent":
		out.Level = gormlogger.Silent
	case "error":
		out.Level = gormlogger.Error
	case "info", "debug":
		out.Level = gormlogger.Info
	default:
		out.Level = gormlogger.Warn
	}
	if c.SlowQuery > 0 {
		out.SlowThreshold = c.SlowQuery
	}
	if c.LedgerSlowQuery > 0 {
		out.LedgerSlowThreshold = c.LedgerSlowQuery
	}
	return out
}

type environ func(string) string

func (e environ) str(key, def string) string {
	if value := strings.TrimSpace(e(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func (e environ) boolean(key string, def bool) bool {
	switch strings.ToLower(e.str(key, "")) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func (e environ) float(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(e.str(key, ""), 64)
	if err != nil {
		return def
	}
	return parsed
}

func (e environ) millis(key string, def time.Duration) time.Duration {
	parsed, err := strconv.Atoi(e.str(key, ""))
	if err != nil || parsed < 0 {
		return def
	}
	return time.Duration(parsed) * time.Millisecond
}
