package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers              []string
	KafkaGroupID              string
	ContributionTopic         string
	ContributionResolvedTopic string
	ContributionDLQTopic      string

	// OCR engine
	OCRBaseURL        string
	OCRRequestTimeout time.Duration
	OCRMaxAttempts    int
	OCRRetryBackoff   time.Duration

	// Parser
	LocationCatalogPath  string
	FuzzyMatchThreshold  float64
	MinParseConfidence   float64
	AmbiguousTimePenalty float64

	// Reconciliation
	DuplicateToleranceMinutes int
	ProcessingTimeout         time.Duration
	ProcessorWorkers          int
	ClaimTTL                  time.Duration
	RouteLockTTL              time.Duration
	RouteLockRetryInterval    time.Duration
	ReaperInterval            time.Duration

	// Intake rate limiting
	IntakeRateLimitRPS   int
	IntakeRateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "perundhu"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "perundhu123"),
		PostgresDB:       getEnv("POSTGRES_DB", "perundhu"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:              getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:              getEnv("KAFKA_GROUP_ID", "perundhu-platform"),
		ContributionTopic:         getEnv("CONTRIBUTION_TOPIC", "contribution-submitted"),
		ContributionResolvedTopic: getEnv("CONTRIBUTION_RESOLVED_TOPIC", "contribution-resolved"),
		ContributionDLQTopic:      getEnv("CONTRIBUTION_DLQ_TOPIC", "contribution-dlq"),

		OCRBaseURL:        getEnv("OCR_BASE_URL", "http://localhost:8000"),
		OCRRequestTimeout: getDuration("OCR_REQUEST_TIMEOUT", 60*time.Second),
		OCRMaxAttempts:    getIntEnv("OCR_MAX_ATTEMPTS", 2),
		OCRRetryBackoff:   getDuration("OCR_RETRY_BACKOFF", 3*time.Second),

		LocationCatalogPath:  getEnv("LOCATION_CATALOG_PATH", ""),
		FuzzyMatchThreshold:  getFloatEnv("FUZZY_MATCH_THRESHOLD", 0.88),
		MinParseConfidence:   getFloatEnv("MIN_PARSE_CONFIDENCE", 0.4),
		AmbiguousTimePenalty: getFloatEnv("AMBIGUOUS_TIME_PENALTY", 0.15),

		DuplicateToleranceMinutes: getIntEnv("DUPLICATE_TOLERANCE_MINUTES", 10),
		ProcessingTimeout:         getDuration("PROCESSING_TIMEOUT", 5*time.Minute),
		ProcessorWorkers:          getIntEnv("PROCESSOR_WORKERS", 4),
		ClaimTTL:                  getDuration("CLAIM_TTL", 10*time.Minute),
		RouteLockTTL:              getDuration("ROUTE_LOCK_TTL", 30*time.Second),
		RouteLockRetryInterval:    getDuration("ROUTE_LOCK_RETRY_INTERVAL", 100*time.Millisecond),
		ReaperInterval:            getDuration("REAPER_INTERVAL", time.Minute),

		IntakeRateLimitRPS:   getIntEnv("INTAKE_RATE_LIMIT_RPS", 20),
		IntakeRateLimitBurst: getIntEnv("INTAKE_RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
