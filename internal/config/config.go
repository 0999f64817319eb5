package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the loaded configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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

	Gateway   GatewayConfig
	Webhook   WebhookConfig
	Reconcile ReconcileConfig
}

// GatewayConfig configures the payment gateway client.
type GatewayConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// WebhookConfig configures inbound webhook authentication.
type WebhookConfig struct {
	Secret string
	// AllowInsecure bypasses webhook authentication when no secret is
	// configured. Off by default; missing credentials fail closed.
	AllowInsecure bool
}

// ReconcileConfig bounds gateway polling.
type ReconcileConfig struct {
	Concurrency    int
	DebounceWindow time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "goldsip"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "goldsip"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		Gateway: GatewayConfig{
			BaseURL:      strings.TrimRight(getenv("GATEWAY_BASE_URL", "https://api.sandbox.gateway.local"), "/"),
			ClientID:     strings.TrimSpace(getenv("GATEWAY_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("GATEWAY_CLIENT_SECRET", "")),
			Timeout:      getenvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:        strings.TrimSpace(getenv("WEBHOOK_SECRET", "")),
			AllowInsecure: getenvBool("WEBHOOK_ALLOW_INSECURE", false),
		},
		Reconcile: ReconcileConfig{
			Concurrency:    getenvInt("RECONCILE_CONCURRENCY", 2),
			DebounceWindow: getenvDuration("RECONCILE_DEBOUNCE_WINDOW", 5*time.Second),
		},
	}

	if cfg.Reconcile.Concurrency < 1 {
		cfg.Reconcile.Concurrency = 1
	}

	return cfg
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
	if err != nil {
		return def
	}
	return parsed
}
