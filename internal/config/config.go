package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	CronAuthToken string

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

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HorizonTestnetURL string
	HorizonMainnetURL string
	AnchorTestnetURL  string
	AnchorMainnetURL  string
	ChainAuthToken    string

	// PayoutPlanLimit caps pending payout rows per org and environment.
	// Zero means unlimited.
	PayoutPlanLimit int64

	WebhookOrgRate      float64
	WebhookOrgBurst     int
	SweepLockTTLSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "meridian"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		CronAuthToken: strings.TrimSpace(getenv("CRON_AUTH_TOKEN", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "meridian"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		HorizonTestnetURL: getenv("HORIZON_TESTNET_URL", "https://horizon-testnet.stellar.org"),
		HorizonMainnetURL: getenv("HORIZON_MAINNET_URL", "https://horizon.stellar.org"),
		AnchorTestnetURL:  strings.TrimSpace(getenv("ANCHOR_TESTNET_URL", "")),
		AnchorMainnetURL:  strings.TrimSpace(getenv("ANCHOR_MAINNET_URL", "")),
		ChainAuthToken:    strings.TrimSpace(getenv("CHAIN_AUTH_TOKEN", "")),

		PayoutPlanLimit: int64(getenvInt("PAYOUT_PLAN_LIMIT", 0)),

		WebhookOrgRate:      getenvFloat("WEBHOOK_ORG_RATE", 5),
		WebhookOrgBurst:     getenvInt("WEBHOOK_ORG_BURST", 20),
		SweepLockTTLSeconds: getenvInt("SWEEP_LOCK_TTL_SECONDS", 55),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
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
