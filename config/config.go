package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	RedisAddr     string // empty disables redis, falls back to in-memory store
	RedisPassword string
	RedisDB       int

	MongoURI string // empty disables the OHLCV archive

	JWTSecret      string
	CredentialsKey string // hex-encoded 32-byte key for sealing exchange secrets

	ScanInterval    time.Duration
	MarketRefresh   time.Duration
	MarketDataTTL   time.Duration
	ExpirySweep     time.Duration
	SignalTTL       time.Duration
	MinConfidence   int
	StopLossPct     float64
	TakeProfitPct   float64
	TradeLockTTL    time.Duration
	MaxPairsPerTick int
	ScanConcurrency int
	ExchangeTimeout time.Duration

	PushAPIURL string
	PushAPIKey string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "coinsignals"),
		SQLitePath: getEnv("SQLITE_PATH", "coinsignals.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MongoURI: getEnv("MONGODB_URI", ""),

		JWTSecret:      getEnv("JWT_SECRET", "change-me"),
		CredentialsKey: getEnv("CREDENTIALS_KEY", ""),

		ScanInterval:    getEnvSeconds("SCAN_INTERVAL_SECONDS", 5),
		MarketRefresh:   getEnvSeconds("MARKET_REFRESH_SECONDS", 2),
		MarketDataTTL:   getEnvSeconds("MARKET_DATA_TTL_SECONDS", 2),
		ExpirySweep:     getEnvSeconds("EXPIRY_SWEEP_SECONDS", 60),
		SignalTTL:       time.Duration(getEnvInt("SIGNAL_TTL_MINUTES", 5)) * time.Minute,
		MinConfidence:   getEnvInt("MIN_CONFIDENCE", 75),
		StopLossPct:     getEnvFloat("STOP_LOSS_PERCENT", 2),
		TakeProfitPct:   getEnvFloat("TAKE_PROFIT_PERCENT", 5),
		TradeLockTTL:    getEnvSeconds("TRADE_LOCK_TTL_SECONDS", 60),
		MaxPairsPerTick: getEnvInt("MAX_PAIRS_PER_TICK", 50),
		ScanConcurrency: getEnvInt("SCAN_CONCURRENCY", 8),
		ExchangeTimeout: getEnvSeconds("EXCHANGE_TIMEOUT_SECONDS", 10),

		PushAPIURL: getEnv("PUSH_API_URL", "https://exp.host/--/api/v2/push/send"),
		PushAPIKey: getEnv("PUSH_API_KEY", ""),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes the database connection
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error

	switch AppConfig.DBDriver {
	case "sqlite":
		log.Printf("Opening sqlite database at %s", AppConfig.SQLitePath)
		db, err = gorm.Open(sqlite.Open(AppConfig.SQLitePath), gormCfg)
	default:
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(AppConfig.DBHost),
			AppConfig.DBPort,
			AppConfig.DBUser,
			AppConfig.DBName,
		)
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
			AppConfig.DBHost,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBPort,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	}

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets a numeric environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

// getEnvSeconds reads a duration knob expressed in whole seconds
func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
