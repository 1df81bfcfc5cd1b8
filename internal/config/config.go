// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Extraction  ExtractionConfig
	Matching    MatchingConfig
	Report      ReportConfig
	Loader      LoaderConfig
	Scheduler   SchedulerConfig
	AWS         AWSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

// SourceConfig describes one upstream product source. Sources are listed in
// SOURCES (comma separated) with per-source SOURCE_<NAME>_* variables.
type SourceConfig struct {
	Name    string
	BaseURL string
	APIKey  string
}

type ExtractionConfig struct {
	Sources     []SourceConfig
	MaxAttempts int
	BaseDelay   time.Duration
	PageSize    int
}

type MatchingConfig struct {
	NameWeight      float64
	BrandWeight     float64
	CategoryWeight  float64
	AttributeWeight float64
	AutoThreshold   float64
	ReviewThreshold float64
}

type ReportConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxWait      time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxRetries   int
	ReportType   string
}

type LoaderConfig struct {
	BatchSize int
}

type SchedulerConfig struct {
	Enabled          bool
	MatchingInterval time.Duration
	ReportInterval   time.Duration
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "mi_core"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		Extraction: ExtractionConfig{
			Sources:     loadSources(),
			MaxAttempts: getEnvAsInt("EXTRACT_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("EXTRACT_BASE_DELAY", 2*time.Second),
			PageSize:    getEnvAsInt("EXTRACT_PAGE_SIZE", 200),
		},
		Matching: MatchingConfig{
			NameWeight:      getEnvAsFloat("MATCH_NAME_WEIGHT", 0.4),
			BrandWeight:     getEnvAsFloat("MATCH_BRAND_WEIGHT", 0.3),
			CategoryWeight:  getEnvAsFloat("MATCH_CATEGORY_WEIGHT", 0.2),
			AttributeWeight: getEnvAsFloat("MATCH_ATTRIBUTE_WEIGHT", 0.1),
			AutoThreshold:   getEnvAsFloat("MATCH_AUTO_THRESHOLD", 0.90),
			ReviewThreshold: getEnvAsFloat("MATCH_REVIEW_THRESHOLD", 0.70),
		},
		Report: ReportConfig{
			BaseURL:      getEnv("REPORT_API_BASE_URL", ""),
			APIKey:       getEnv("REPORT_API_KEY", ""),
			PollInterval: getEnvAsDuration("REPORT_POLL_INTERVAL", 5*time.Minute),
			MaxWait:      getEnvAsDuration("REPORT_MAX_WAIT", 60*time.Minute),
			BackoffBase:  getEnvAsDuration("REPORT_BACKOFF_BASE", 30*time.Second),
			BackoffCap:   getEnvAsDuration("REPORT_BACKOFF_CAP", 120*time.Second),
			MaxRetries:   getEnvAsInt("REPORT_MAX_RETRIES", 3),
			ReportType:   getEnv("REPORT_TYPE", "warehouse_stock"),
		},
		Loader: LoaderConfig{
			BatchSize: getEnvAsInt("LOAD_BATCH_SIZE", 1000),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			MatchingInterval: getEnvAsDuration("SCHEDULER_MATCHING_INTERVAL", 6*time.Hour),
			ReportInterval:   getEnvAsDuration("SCHEDULER_REPORT_INTERVAL", 1*time.Hour),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "mi-core-report-archive"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	m := c.Matching
	if m.AutoThreshold <= m.ReviewThreshold {
		return fmt.Errorf("MATCH_AUTO_THRESHOLD must be greater than MATCH_REVIEW_THRESHOLD")
	}

	weightSum := m.NameWeight + m.BrandWeight + m.CategoryWeight + m.AttributeWeight
	if weightSum < 0.99 || weightSum > 1.01 {
		return fmt.Errorf("matching weights must sum to 1.0, got %.2f", weightSum)
	}

	return nil
}

func loadSources() []SourceConfig {
	names := strings.Split(getEnv("SOURCES", "marketplace"), ",")

	var sources []SourceConfig
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		prefix := "SOURCE_" + strings.ToUpper(name)
		sources = append(sources, SourceConfig{
			Name:    name,
			BaseURL: getEnv(prefix+"_BASE_URL", ""),
			APIKey:  getEnv(prefix+"_API_KEY", ""),
		})
	}

	return sources
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
