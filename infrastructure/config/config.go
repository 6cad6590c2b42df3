package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// RetryPolicy controls how collaborator calls (storage, event bus) are
// retried by the infrastructure adapters.
type RetryPolicy struct {
	MaxRetries      int           `validate:"gte=0,lte=10"`
	BackoffStrategy string        `validate:"oneof=linear exponential fixed"`
	InitialDelay    time.Duration `validate:"gt=0"`
	MaxDelay        time.Duration `validate:"gtefield=InitialDelay"`
}

// Delay returns the wait before the given attempt (1-based) under the
// configured backoff strategy, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch p.BackoffStrategy {
	case "exponential":
		d = p.InitialDelay << (attempt - 1)
	case "linear":
		d = p.InitialDelay * time.Duration(attempt)
	default: // fixed
		d = p.InitialDelay
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string `validate:"oneof=development staging production"`

	// AWS configuration
	AWSRegion        string
	OperationsTable  string
	SnapshotsTable   string
	ConnectionsTable string
	EventBusName     string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// WebSocket configuration
	WebSocketEndpoint string

	// Sync engine configuration
	EnableRealTimeSync    bool
	ConflictDetectionMode string `validate:"oneof=strict loose adaptive"`
	ResolutionTimeout     time.Duration
	MaxPendingConflicts   int `validate:"gt=0"`
	BatchSize             int `validate:"gt=0,lte=100"`
	Retry                 RetryPolicy

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		OperationsTable:  getEnv("OPERATIONS_TABLE", "mindsync-operations"),
		SnapshotsTable:   getEnv("SNAPSHOTS_TABLE", "mindsync-snapshots"),
		ConnectionsTable: getEnv("CONNECTIONS_TABLE", "mindsync-connections"),
		EventBusName:     getEnv("EVENT_BUS_NAME", "mindsync-events"),

		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),

		EnableRealTimeSync:    getEnvBool("ENABLE_REAL_TIME_SYNC", true),
		ConflictDetectionMode: getEnv("CONFLICT_DETECTION_MODE", "strict"),
		ResolutionTimeout:     getEnvDuration("RESOLUTION_TIMEOUT", 10*time.Second),
		MaxPendingConflicts:   getEnvInt("MAX_PENDING_CONFLICTS", 1000),
		BatchSize:             getEnvInt("BATCH_SIZE", 10),
		Retry: RetryPolicy{
			MaxRetries:      getEnvInt("RETRY_MAX_RETRIES", 3),
			BackoffStrategy: getEnv("RETRY_BACKOFF_STRATEGY", "exponential"),
			InitialDelay:    getEnvDuration("RETRY_INITIAL_DELAY", 100*time.Millisecond),
			MaxDelay:        getEnvDuration("RETRY_MAX_DELAY", 5*time.Second),
		},

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "mindsync"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility
func Load() (*Config, error) {
	return LoadConfig()
}

var validate = validator.New()

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.OperationsTable == "" {
			return fmt.Errorf("OPERATIONS_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
