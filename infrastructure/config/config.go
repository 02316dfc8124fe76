package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion        string
	DynamoDBTable    string
	EntityIndex      string // GSI1 - entity-type listings ordered by time
	WorkflowIndex    string // GSI2 - executions by workflow id
	EventBusName     string
	RulePrefix       string // EventBridge rule name prefix for schedules
	MetricsNamespace string

	// Agent execution backend
	AgentBackendURL     string
	AgentBackendAPIKey  string
	AgentPollInterval   time.Duration
	AgentPollAttempts   int
	AgentMaxConcurrency int

	// Embeddings provider
	EmbeddingsURL       string
	EmbeddingsAPIKey    string
	EmbeddingDimensions int

	// External connector hub (CMS / CRM / commerce collaborators)
	ConnectorHubURL string

	// Model selection
	ModelFast      string
	ModelReasoning string
	ModelDefault   string
	SecretPrefix   string // SSM parameter path prefix

	// Semantic cache
	CacheTTL time.Duration

	// Governance
	DefaultTenantBudget float64

	// Background work
	WorkerCount       int
	WorkerQueueDepth  int
	WorkerTaskTimeout time.Duration
	DiscoveryInterval time.Duration

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress:    getEnv("SERVER_ADDRESS", ":8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:    getEnv("TABLE_NAME", "opsbrain"),
		EntityIndex:      getEnv("ENTITY_INDEX_NAME", "EntityIndex"),
		WorkflowIndex:    getEnv("WORKFLOW_INDEX_NAME", "WorkflowIndex"),
		EventBusName:     getEnv("EVENT_BUS_NAME", "opsbrain-events"),
		RulePrefix:       getEnv("SCHEDULE_RULE_PREFIX", "opsbrain-schedule-"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "OpsBrain"),

		AgentBackendURL:     getEnv("AGENT_BACKEND_URL", "http://localhost:9090"),
		AgentBackendAPIKey:  getEnv("AGENT_BACKEND_API_KEY", ""),
		AgentPollInterval:   getEnvDuration("AGENT_POLL_INTERVAL", 2*time.Second),
		AgentPollAttempts:   getEnvInt("AGENT_POLL_ATTEMPTS", 60),
		AgentMaxConcurrency: getEnvInt("AGENT_MAX_CONCURRENCY", 32),

		EmbeddingsURL:       getEnv("EMBEDDINGS_URL", "http://localhost:9091"),
		EmbeddingsAPIKey:    getEnv("EMBEDDINGS_API_KEY", ""),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),

		ConnectorHubURL: getEnv("CONNECTOR_HUB_URL", "http://localhost:9092"),

		ModelFast:      getEnv("MODEL_FAST", "claude-3-5-haiku-20241022"),
		ModelReasoning: getEnv("MODEL_REASONING", "claude-sonnet-4-20250514"),
		ModelDefault:   getEnv("MODEL_DEFAULT", "claude-3-7-sonnet-20250219"),
		SecretPrefix:   getEnv("SECRET_PREFIX", "/opsbrain"),

		CacheTTL: getEnvDuration("SEMANTIC_CACHE_TTL", time.Hour),

		DefaultTenantBudget: getEnvFloat("DEFAULT_TENANT_BUDGET", 100.0),

		WorkerCount:       getEnvInt("WORKER_COUNT", 8),
		WorkerQueueDepth:  getEnvInt("WORKER_QUEUE_DEPTH", 256),
		WorkerTaskTimeout: getEnvDuration("WORKER_TASK_TIMEOUT", 2*time.Minute),
		DiscoveryInterval: getEnvDuration("DISCOVERY_INTERVAL", 6*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "opsbrain"),

		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
		if c.AgentBackendAPIKey == "" {
			return fmt.Errorf("AGENT_BACKEND_API_KEY is required in production")
		}
	}
	if c.AgentPollAttempts < 1 {
		return fmt.Errorf("AGENT_POLL_ATTEMPTS must be positive")
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
