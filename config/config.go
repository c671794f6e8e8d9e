package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	FanoutModeLocal = "local"
	FanoutModeRedis = "redis"
)

type Config struct {
	AppPort string
	AppMode string

	StoreDriver    string
	DBHost         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBPort         string
	DBMaxOpenConns int

	JWTSecret string

	RedisEnabled     bool
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	MemberCacheTTL   time.Duration
	MessageRateLimit int
	FanoutMode       string

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	S3PresignTTL time.Duration

	MessagePageSize int
	MaxPageSize     int
	PreviewPageSize int
	SearchLimit     int

	WSEventsPerSecond int
	WSEventBurst      int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),

		StoreDriver:    getEnv("STORE_DRIVER", StoreDriverPostgres),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "parley_chat"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),

		RedisEnabled:     getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		MemberCacheTTL:   getEnvAsDuration("MEMBER_CACHE_TTL", 5*time.Minute),
		MessageRateLimit: getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		FanoutMode:       getEnv("FANOUT_MODE", FanoutModeLocal),

		S3Region:     getEnv("S3_REGION", ""),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		S3PresignTTL: getEnvAsDuration("S3_PRESIGN_TTL", 15*time.Minute),

		// Fixed page size for the unread/initial page. See DESIGN.md.
		MessagePageSize: getEnvAsInt("MESSAGE_PAGE_SIZE", 20),
		MaxPageSize:     getEnvAsInt("MAX_PAGE_SIZE", 100),
		PreviewPageSize: getEnvAsInt("PREVIEW_PAGE_SIZE", 20),
		SearchLimit:     getEnvAsInt("SEARCH_LIMIT", 40),

		WSEventsPerSecond: getEnvAsInt("WS_EVENTS_PER_SECOND", 10),
		WSEventBurst:      getEnvAsInt("WS_EVENT_BURST", 20),
	}
}

// S3Configured reports whether enough S3 settings are present to build a storage client.
func (c *Config) S3Configured() bool {
	return c.S3Region != "" && c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
