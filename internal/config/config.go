// Package config loads application configuration from environment variables.
// A .env file in the working directory is read first (if present) so local
// development does not require exporting every variable by hand.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Required values abort startup when missing;
// tunables fall back to documented defaults so a worker can be deployed
// with nothing but the database and broker coordinates.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	RedisAddr     string // host:port of the Redis server (empty disables cache/rate limit)
	RedisPassword string // optional Redis password
	RedisDB       int    // Redis database number

	AMQPURL string // RabbitMQ URL for the job wake-up channel (empty disables push)

	OrderTokenSecret string        // secret signing order status-page tokens
	OrderTokenTTL    time.Duration // validity of order status-page tokens

	ProviderBaseURL string        // payment provider API base URL
	ProviderAPIKey  string        // payment provider API key
	ProviderTimeout time.Duration // timeout for provider calls; exceeding it queues a retry

	PublicBaseURL string // externally reachable base URL used for redirect/webhook URLs

	PollInterval    time.Duration // base worker polling interval
	MaxIdleInterval time.Duration // cap for the idle-backoff sleep
	BatchSize       int           // jobs claimed per dequeue
	MaxAttempts     int           // attempts before a job is terminally failed
	RetryBase       time.Duration // base of the exponential retry backoff
	RetryCap        time.Duration // cap of the exponential retry backoff
	JobTimeout      time.Duration // bound on a single job execution
	OrphanAge       time.Duration // age after which a pending order is considered orphaned
	JobRetention    time.Duration // age after which terminal jobs are purged
	ShutdownTimeout time.Duration // hard limit on waiting for in-flight jobs at shutdown

	RateLimitEnabled bool          // toggle for the checkout rate limit
	RateLimitMax     int           // requests allowed per window per client
	RateLimitWindow  time.Duration // rate limit window size
}

// Load reads configuration values from the environment and returns a Config.
// Required variables are enforced by must() and missing values cause the
// program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		AMQPURL: os.Getenv("RABBITMQ_URL"),

		OrderTokenSecret: must("ORDER_TOKEN_SECRET"),
		OrderTokenTTL:    envDur("ORDER_TOKEN_TTL", 24*time.Hour),

		ProviderBaseURL: must("PAYMENT_API_URL"),
		ProviderAPIKey:  must("PAYMENT_API_KEY"),
		ProviderTimeout: envDur("PAYMENT_TIMEOUT", 10*time.Second),

		PublicBaseURL: must("PUBLIC_BASE_URL"),

		PollInterval:    envDur("WORKER_POLL_INTERVAL", 5*time.Second),
		MaxIdleInterval: envDur("WORKER_MAX_IDLE_INTERVAL", time.Minute),
		BatchSize:       envInt("WORKER_BATCH_SIZE", 10),
		MaxAttempts:     envInt("JOB_MAX_ATTEMPTS", 5),
		RetryBase:       envDur("JOB_RETRY_BASE", 5*time.Second),
		RetryCap:        envDur("JOB_RETRY_CAP", 5*time.Minute),
		JobTimeout:      envDur("JOB_TIMEOUT", 5*time.Minute),
		OrphanAge:       envDur("ORDER_ORPHAN_AGE", 2*time.Hour),
		JobRetention:    envDur("JOB_RETENTION", 7*24*time.Hour),
		ShutdownTimeout: envDur("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),

		RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", true),
		RateLimitMax:     envInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow:  envDur("RATE_LIMIT_WINDOW", time.Minute),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool for %s: %q", key, v)
	}
	return b
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}
