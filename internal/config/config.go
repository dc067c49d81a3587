package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	SMTP         SMTPConfig
	Keys         APIKeys
	Ai           AIConfig
	Storage      StorageConfig
	Orchestrator OrchestratorConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	// EventBus is "nats" or "channel".
	EventBus string
	// QuietConsole keeps logs in the file only.
	QuietConsole bool
}

type DatabaseConfig struct {
	Connection string
	SqlitePath string
	// SessionBackend is one of memory, redis, postgres, sqlite.
	SessionBackend string
}

type SMTPConfig struct {
	Host        string
	Port        int
	Email       string
	Password    string
	SenderName  string
	IntakeEmail string
}

type APIKeys struct {
	JWTSecret   string
	Anthropic   string
	Gemini      string
	HuggingFace string
}

type AIConfig struct {
	LLMProvider       string // ollama, huggingface, anthropic, gemini
	LLMModel          string
	LLMBaseURL        string
	EmbeddingProvider string // ollama, gemini, jina
	EmbeddingModel    string
	OllamaBaseURL     string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type OrchestratorConfig struct {
	StageTimeout  time.Duration
	MaxSteps      int
	SessionTTL    time.Duration
	PolicyFile    string
	AllowedHosts  []string
	MaxDocBytes   int64
	SearchCacheSz int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", ""),
			EventBus:           getEnv("EVENT_BUS", "channel"),
			QuietConsole:       getEnvAsBool("LOG_QUIET", false),
		},
		Database: DatabaseConfig{
			Connection:     getEnv("DB_CONNECTION_STRING", ""),
			SqlitePath:     getEnv("SQLITE_PATH", "data/sessions.db"),
			SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvAsInt("SMTP_PORT", 587),
			Email:       getEnv("SMTP_EMAIL", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			SenderName:  getEnv("SMTP_SENDER_NAME", "Legal Assistant"),
			IntakeEmail: getEnv("INTAKE_EMAIL", ""),
		},
		Keys: APIKeys{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			Anthropic:   getEnv("ANTHROPIC_API_KEY", ""),
			Gemini:      getEnv("GOOGLE_GEMINI_API_KEY", ""),
			HuggingFace: getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "qwen2.5:7b"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "legal-briefs"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Orchestrator: OrchestratorConfig{
			StageTimeout:  getEnvAsDuration("STAGE_TIMEOUT", 60*time.Second),
			MaxSteps:      getEnvAsInt("MAX_STEPS", 32),
			SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			PolicyFile:    getEnv("POLICY_FILE", ""),
			AllowedHosts:  getEnvAsList("DOCUMENT_ALLOWED_HOSTS"),
			MaxDocBytes:   int64(getEnvAsInt("DOCUMENT_MAX_BYTES", 5<<20)),
			SearchCacheSz: getEnvAsInt("SEARCH_CACHE_SIZE", 512),
		},
	}
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

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
