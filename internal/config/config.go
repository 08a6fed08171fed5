package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	External  ExternalAPIConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ExternalAPIConfig struct {
	RevenueBaseURL string
	KeywordBaseURL string
	APIKey         string
	Timeout        int
	// RateLimit is the sustained request rate against the keyword API,
	// in requests per second.
	RateLimit float64
}

type SchedulerConfig struct {
	// Timezone is the default IANA zone for job schedules that do not
	// specify their own.
	Timezone string
	// ShutdownTimeout is the hard deadline for the shutdown sequence.
	ShutdownTimeout time.Duration
	// GracePeriod is how long in-flight HTTP handlers get to finish.
	GracePeriod time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "marketing"),
			Password: getEnv("DB_PASSWORD", "marketing123"),
			DBName:   getEnv("DB_NAME", "marketing_core"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		External: ExternalAPIConfig{
			RevenueBaseURL: getEnv("REVENUE_API_URL", ""),
			KeywordBaseURL: getEnv("KEYWORD_API_URL", ""),
			APIKey:         getEnv("EXTERNAL_API_KEY", ""),
			Timeout:        getEnvAsInt("EXTERNAL_API_TIMEOUT", 30),
			RateLimit:      getEnvAsFloat("KEYWORD_API_RATE", 5),
		},
		Scheduler: SchedulerConfig{
			Timezone:        getEnv("SCHEDULER_TIMEZONE", "UTC"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 60*time.Second),
			GracePeriod:     getEnvAsDuration("SHUTDOWN_GRACE_PERIOD", 5*time.Second),
		},
	}
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}
