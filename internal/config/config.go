package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process configuration: where output goes and how the run is observed.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	// Sinks lists the enabled sinks: file, sql, redis.
	Sinks     []string
	OutputDir string
	ReportDir string

	// SnapshotStore is file, sql or badger.
	SnapshotStore string
	BadgerDir     string

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
	DBMigrate         bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	GCSBucket          string
	GCSPrefix          string
	GCSCredentialsFile string

	MetricsAddr string
	Metrics     MetricsPushConfig
}

// MetricsPushConfig configures the end-of-run metrics push.
type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:            getenv("APP_SERVICE", "lifecyclesim"),
		AppVersion:         getenv("APP_VERSION", "0.1.0"),
		Environment:        getenv("ENVIRONMENT", "development"),
		OTLPEndpoint:       getenv("OTLP_ENDPOINT", "localhost:4317"),
		Sinks:              parseList(getenv("SINKS", "file")),
		OutputDir:          getenv("OUTPUT_DIR", "output"),
		ReportDir:          getenv("REPORT_DIR", "reports"),
		SnapshotStore:      strings.ToLower(getenv("SNAPSHOT_STORE", "file")),
		BadgerDir:          getenv("BADGER_DIR", "state/badger"),
		DBType:             getenv("DATABASE_TYPE", "postgres"),
		DBHost:             getenv("DATABASE_HOST", "localhost"),
		DBPort:             getenv("DATABASE_PORT", "5432"),
		DBName:             getenv("DATABASE_NAME", "lifecyclesim"),
		DBUser:             getenv("DATABASE_USER", "postgres"),
		DBPassword:         getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:          getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:      getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:      getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime:  getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:  getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMigrate:          getenvBool("DATABASE_MIGRATE", true),
		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		RedisDB:            getenvInt("REDIS_DB", 0),
		RedisPrefix:        getenv("REDIS_STREAM_PREFIX", "lifecyclesim"),
		GCSBucket:          strings.TrimSpace(getenv("GCS_BUCKET", "")),
		GCSPrefix:          strings.Trim(getenv("GCS_PREFIX", "raw"), "/"),
		GCSCredentialsFile: strings.TrimSpace(getenv("GCS_CREDENTIALS_FILE", "")),
		MetricsAddr:        strings.TrimSpace(getenv("METRICS_ADDR", "")),
		Metrics: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "pushgateway")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
	}
}

// SinkEnabled reports whether name is listed in SINKS.
func (c Config) SinkEnabled(name string) bool {
	for _, s := range c.Sinks {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
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

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
