package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from environment variables
// Provide sane defaults for local development.
type Config struct {
	AppName string
	Env     string // development, staging, production
	Port    string
	GinMode string

	// Database
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBMaxConns    int32
	DBMinConns    int32
	DBMaxConnLife time.Duration
	RunMigrations bool

	// Redis
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int
	SearchCacheTTL     time.Duration

	// CORS
	CORSAllowedOrigins string // comma-separated

	// TrustedProxiesRaw lists proxy IPs or CIDRs whose forwarding headers are
	// honored (comma-separated). Empty trusts no proxy.
	TrustedProxiesRaw string

	// RabbitMQ
	RabbitMQURL             string
	RabbitMQUserEventsQueue string

	// Elasticsearch
	ElasticsearchAddrs string // comma-separated
	ElasticsearchUser  string
	ElasticsearchPass  string
	ESUsersIndex       string

	// TFASecretKey is a base64 32-byte key sealing tfa_secret at rest.
	// Empty stores secrets as given.
	TFASecretKey string

	// Prometheus /metrics and repository instrumentation
	MetricsEnabled bool

	// HTTP access log toggle
	HTTPLogEnabled bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("invalid boolean for %s: %v, using default %v", key, err, def)
			return def
		}
		return b
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid int for %s: %v, using default %d", key, err, def)
			return def
		}
		return i
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using default %v", key, err, def)
			return def
		}
		return d
	}
	return def
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		AppName: getenv("APP_NAME", "pong-user-directory"),
		Env:     getenv("APP_ENV", "development"),
		Port:    getenv("PORT", "8080"),
		GinMode: getenv("GIN_MODE", "release"),

		DBHost:        getenv("DB_HOST", "localhost"),
		DBPort:        getenv("DB_PORT", "5432"),
		DBUser:        getenv("DB_USER", "postgres"),
		DBPassword:    getenv("DB_PASSWORD", "postgres"),
		DBName:        getenv("DB_NAME", "pong"),
		DBSSLMode:     getenv("DB_SSLMODE", "disable"),
		DBMaxConns:    int32(getint("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(getint("DB_MIN_CONNS", 2)),
		DBMaxConnLife: getdur("DB_MAX_CONN_LIFETIME", time.Hour),
		RunMigrations: getbool("RUN_MIGRATIONS", true),

		RedisAddr:          getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		RedisDB:            getint("REDIS_DB", 0),
		RateLimitPerMinute: getint("RATE_LIMIT_PER_MINUTE", 120),
		SearchCacheTTL:     getdur("SEARCH_CACHE_TTL", 30*time.Second),

		CORSAllowedOrigins: getenv("CORS_ALLOWED_ORIGINS", ""),
		TrustedProxiesRaw:  getenv("TRUSTED_PROXIES", ""),

		RabbitMQURL:             getenv("RABBITMQ_URL", ""),
		RabbitMQUserEventsQueue: getenv("RABBITMQ_USER_EVENTS_QUEUE", "user_events"),

		ElasticsearchAddrs: getenv("ELASTICSEARCH_ADDRS", ""),
		ElasticsearchUser:  getenv("ELASTICSEARCH_USERNAME", ""),
		ElasticsearchPass:  getenv("ELASTICSEARCH_PASSWORD", ""),
		ESUsersIndex:       getenv("ES_USERS_INDEX", "users"),

		TFASecretKey: getenv("TFA_SECRET_KEY", ""),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
		HTTPLogEnabled: getbool("HTTP_LOG_ENABLED", false),
	}
}

// PostgresDSN returns a DSN compatible with pgx
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// CORSOrigins returns the allowed origins as slice
func (c *Config) CORSOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxies returns the trusted proxy entries as slice
func (c *Config) TrustedProxies() []string {
	return splitList(c.TrustedProxiesRaw)
}

// ESAddrs returns Elasticsearch addresses as a slice
func (c *Config) ESAddrs() []string {
	return splitList(c.ElasticsearchAddrs)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			res = append(res, p)
		}
	}
	return res
}
