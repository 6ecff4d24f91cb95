package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port        string
	APIRatePerS float64 // per-client request budget on the HTTP surface

	// Database
	DBPath string

	// Scheduler
	SchedulerTick  time.Duration
	WorkerPoolSize int

	// Execution lock
	LockTTL       time.Duration
	RedisAddr     string // empty = in-process locker
	RedisPassword string
	RedisDB       int

	// Reconciler
	ReconcileInterval time.Duration
	ExitTolerance     float64 // relative tolerance for SL/TP exit inference

	// Exchange
	PaperTrading     bool
	ExchangeTimeout  time.Duration
	ExchangeRetries  int
	ExchangeRatePerS float64

	// Plugin strategies (uploaded bots)
	EnablePluginWorker bool
	PluginWorkerAddr   string
	PluginCallTimeout  time.Duration

	// Declarative subscription bootstrap
	SeedPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the core still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		APIRatePerS:        getEnvFloat("API_RATE_PER_SECOND", 20),
		DBPath:             getEnv("DB_PATH", "./data/botcore.db"),
		SchedulerTick:      getEnvDuration("SCHEDULER_TICK", 5*time.Second),
		WorkerPoolSize:     getEnvInt("WORKER_POOL_SIZE", 8),
		LockTTL:            getEnvDuration("LOCK_TTL", 60*time.Second),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 10*time.Second),
		ExitTolerance:      getEnvFloat("EXIT_TOLERANCE", 0.001),
		PaperTrading:       getEnv("PAPER_TRADING", "true") == "true",
		ExchangeTimeout:    getEnvDuration("EXCHANGE_TIMEOUT", 10*time.Second),
		ExchangeRetries:    getEnvInt("EXCHANGE_RETRIES", 3),
		ExchangeRatePerS:   getEnvFloat("EXCHANGE_RATE_PER_SECOND", 10),
		EnablePluginWorker: getEnv("ENABLE_PLUGIN_WORKER", "false") == "true",
		PluginWorkerAddr:   getEnv("PLUGIN_WORKER_ADDR", "localhost:50051"),
		PluginCallTimeout:  getEnvDuration("PLUGIN_CALL_TIMEOUT", 2*time.Second),
		SeedPath:           getEnv("SUBSCRIPTION_SEED", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
