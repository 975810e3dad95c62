package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Telraam  TelraamConfig
	Ingest   IngestConfig
	Archive  ArchiveConfig
	Monitor  MonitorConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers   string
	TopicRuns string
}

// BrokerList splits the comma-separated broker string.
func (k KafkaConfig) BrokerList() []string {
	return strings.Split(k.Brokers, ",")
}

// TelraamConfig holds upstream API credentials and retry tuning. The API
// key is required for any binary that talks to the upstream; those
// binaries validate this section at startup and fail fast.
type TelraamConfig struct {
	APIKey       string `validate:"required"`
	BaseURL      string `validate:"required,url"`
	MaxRetries   int    `validate:"gte=0"`
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type IngestConfig struct {
	BackfillDays      int
	BackfillBatchSize int
	RetentionDays     int
	SyncCallDelay     time.Duration
	BackfillCallDelay time.Duration
}

// ArchiveConfig configures the S3-compatible bucket that receives raw
// report payloads on the backfill path. An empty endpoint disables
// archiving.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

type MonitorConfig struct {
	Port     int
	CacheTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "traffic_user"),
			Password: getEnv("DB_PASSWORD", "traffic_pass"),
			DBName:   getEnv("DB_NAME", "traffic_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:   getEnv("KAFKA_BROKERS", "localhost:9092"),
			TopicRuns: getEnv("KAFKA_TOPIC_RUNS", "traffic.ingest.runs"),
		},
		Telraam: TelraamConfig{
			APIKey:       getEnv("TELRAAM_API_KEY", ""),
			BaseURL:      getEnv("TELRAAM_BASE_URL", "https://telraam-api.net/v1"),
			MaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", 3),
			InitialDelay: getEnvAsDuration("RETRY_INITIAL_DELAY", 2*time.Second),
			MaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", 10*time.Second),
		},
		Ingest: IngestConfig{
			BackfillDays:      getEnvAsInt("BACKFILL_DAYS", 90),
			BackfillBatchSize: getEnvAsInt("BACKFILL_BATCH_SIZE", 10),
			RetentionDays:     getEnvAsInt("RETENTION_DAYS", 7),
			SyncCallDelay:     getEnvAsDuration("SYNC_CALL_DELAY", 5*time.Second),
			BackfillCallDelay: getEnvAsDuration("BACKFILL_CALL_DELAY", 10*time.Second),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			Bucket:    getEnv("ARCHIVE_BUCKET", "traffic-historical"),
			UseSSL:    getEnvAsBool("ARCHIVE_USE_SSL", true),
		},
		Monitor: MonitorConfig{
			Port:     getEnvAsInt("MONITOR_PORT", 8080),
			CacheTTL: getEnvAsDuration("MONITOR_CACHE_TTL", time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "traffic-pipeline@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
	}

	return config, nil
}

// ValidateIngest checks the settings the ingestion binaries cannot run
// without, most importantly the upstream API key.
func (c *Config) ValidateIngest() error {
	if err := validator.New().Struct(c.Telraam); err != nil {
		return fmt.Errorf("telraam config: %w", err)
	}
	if c.Ingest.BackfillDays <= 0 {
		return fmt.Errorf("BACKFILL_DAYS must be positive, got %d", c.Ingest.BackfillDays)
	}
	if c.Ingest.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.Ingest.RetentionDays)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
