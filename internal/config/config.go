package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Auth       AuthConfig
	Redis      RedisConfig
	Tax        TaxConfig
	Reconcile  ReconcileConfig
	Webhook    WebhookConfig
	Gateway    GatewayConfig
	Scheduler  SchedulerConfig
	BillingDir string
}

// AuthConfig guards the client API. Identity arrives in trusted headers set
// by the edge proxy; APIToken authenticates the proxy itself.
type AuthConfig struct {
	APIToken string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type TaxConfig struct {
	DefaultJurisdiction string
	RefreshInterval     time.Duration
}

type ReconcileConfig struct {
	Timeout     time.Duration
	MaxAttempts int
}

type WebhookConfig struct {
	NativeSecret string
	StripeSecret string
	Tolerance    time.Duration
}

type GatewayConfig struct {
	Provider        string
	StripeSecretKey string
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "nestbill"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", ""),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "nestbill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Auth: AuthConfig{
			APIToken: strings.TrimSpace(getenv("API_TOKEN", "")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Tax: TaxConfig{
			DefaultJurisdiction: strings.ToUpper(strings.TrimSpace(getenv("TAX_DEFAULT_JURISDICTION", "CA"))),
			RefreshInterval:     getenvDuration("TAX_RATE_REFRESH_INTERVAL", 24*time.Hour),
		},
		Reconcile: ReconcileConfig{
			Timeout:     getenvDuration("RECONCILE_TIMEOUT", 10*time.Second),
			MaxAttempts: getenvInt("RECONCILE_MAX_ATTEMPTS", 3),
		},
		Webhook: WebhookConfig{
			NativeSecret: strings.TrimSpace(getenv("WEBHOOK_NATIVE_SECRET", "")),
			StripeSecret: strings.TrimSpace(getenv("WEBHOOK_STRIPE_SECRET", "")),
			Tolerance:    getenvDuration("WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Gateway: GatewayConfig{
			Provider:        strings.ToLower(strings.TrimSpace(getenv("PAYMENT_GATEWAY", "sandbox"))),
			StripeSecretKey: strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 100),
		},
		BillingDir: getenv("BILLING_CONFIG_DIR", ""),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
