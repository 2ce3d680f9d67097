package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App   AppConfig
	Coral CoralConfig
	Agent AgentConfig
	Model ModelConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

// CoralConfig covers everything needed to talk to the Coral server.
type CoralConfig struct {
	BaseURL        string
	ApplicationID  string
	PrivacyKey     string
	SSEURL         string
	AgentID        string
	RequestTimeout time.Duration
	SSEMaxRetries  int
}

// AgentConfig is the backend's view of the interface agent: where its chat
// endpoint lives and how hard to retry it.
type AgentConfig struct {
	Host           string
	Port           string
	Endpoint       string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxConcurrent  int
}

// URL returns the full URL for the interface agent chat endpoint.
func (a AgentConfig) URL() string {
	return fmt.Sprintf("http://%s:%s%s", a.Host, a.Port, a.Endpoint)
}

// ModelConfig configures the agent process's model providers: a primary and
// the Groq fallback.
type ModelConfig struct {
	Provider      string
	Name          string
	APIKey        string
	BaseURL       string
	GroqModel     string
	GroqAPIKey    string
	Temperature   float64
	MaxTokens     int
	ChatPort      string
	MaxConcurrent int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Coral: CoralConfig{
			BaseURL:        getEnv("CORAL_SERVER_URL", "http://localhost:5555/api/v1"),
			ApplicationID:  getEnv("CORAL_SERVER_APPID", "app"),
			PrivacyKey:     getEnv("CORAL_SERVER_PRIVKEY", "priv"),
			SSEURL:         getEnv("CORAL_SSE_URL", ""),
			AgentID:        getEnv("CORAL_AGENT_ID", "interface"),
			RequestTimeout: getEnvAsSeconds("CORAL_REQUEST_TIMEOUT", 60),
			SSEMaxRetries:  getEnvAsInt("CORAL_SSE_MAX_RETRIES", 5),
		},
		Agent: AgentConfig{
			Host:           getEnv("INTERFACE_AGENT_HOST", "localhost"),
			Port:           getEnv("INTERFACE_AGENT_PORT", "5174"),
			Endpoint:       getEnv("INTERFACE_AGENT_ENDPOINT", "/api/chat"),
			RequestTimeout: getEnvAsSeconds("AGENT_REQUEST_TIMEOUT", 300),
			ConnectTimeout: getEnvAsSeconds("AGENT_CONNECTION_TIMEOUT", 30),
			MaxRetries:     getEnvAsInt("AGENT_MAX_RETRIES", 5),
			BackoffBase:    getEnvAsSeconds("AGENT_BACKOFF_BASE_DELAY", 1),
			BackoffMax:     getEnvAsSeconds("AGENT_BACKOFF_MAX_DELAY", 30),
			MaxConcurrent:  getEnvAsInt("AGENT_MAX_CONCURRENT_CALLS", 3),
		},
		Model: ModelConfig{
			Provider:      getEnv("MODEL_PROVIDER", "mistral"),
			Name:          getEnv("MODEL_NAME", "mistral-large-latest"),
			APIKey:        getEnv("MODEL_API_KEY", ""),
			BaseURL:       getEnv("MODEL_BASE_URL", ""),
			GroqModel:     getEnv("GROQ_MODEL_NAME", "llama-3.1-8b-instant"),
			GroqAPIKey:    getEnv("GROQ_API_KEY", ""),
			Temperature:   getEnvAsFloat("MODEL_TEMPERATURE", 0.0),
			MaxTokens:     getEnvAsInt("MODEL_MAX_TOKENS", 8000),
			ChatPort:      getEnv("INTERFACE_AGENT_PORT", "5174"),
			MaxConcurrent: getEnvAsInt("MODEL_MAX_CONCURRENT_CALLS", 3),
		},
	}
}

// ValidateAgent checks the settings the agent process cannot run without.
// A missing value here is a configuration error, fatal at startup.
func (c *Config) ValidateAgent() error {
	var missing []string
	if c.Coral.SSEURL == "" {
		missing = append(missing, "CORAL_SSE_URL")
	}
	if c.Coral.AgentID == "" {
		missing = append(missing, "CORAL_AGENT_ID")
	}
	if c.Model.APIKey == "" {
		missing = append(missing, "MODEL_API_KEY")
	}
	if c.Model.GroqAPIKey == "" {
		missing = append(missing, "GROQ_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model temperature must be between 0 and 2, got %v", c.Model.Temperature)
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("model max tokens must be positive, got %d", c.Model.MaxTokens)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}
