package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backends accepted by STORE_BACKEND and QUEUE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	QueueLocal = "local"
	QueueNATS  = "nats"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	ServiceName string

	StoreBackend  string
	DatabaseURL   string
	DBMaxConns    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	CampaignsFile string

	QueueBackend     string
	NATSURL          string
	NATSTaskSubject  string
	NATSEventSubject string
	NATSQueueGroup   string
	WorkerCount      int
	QueueBuffer      int

	StorageDir     string
	StorageBaseURL string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	PipelineAngles      int
	PipelineConcurrency int
	FallbackScore       int
	GeneratorRetries    int
	GeneratorTimeout    time.Duration

	TracingEnabled bool
	OTLPEndpoint   string

	CORSOrigins      []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		ServiceName: getEnv("SERVICE_NAME", "adforge"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "adforge:"),
		CampaignsFile: os.Getenv("CAMPAIGNS_FILE"),

		QueueBackend:     strings.ToLower(getEnv("QUEUE_BACKEND", QueueLocal)),
		NATSURL:          os.Getenv("NATS_URL"),
		NATSTaskSubject:  getEnv("NATS_TASK_SUBJECT", "pipeline.tasks"),
		NATSEventSubject: getEnv("NATS_EVENT_SUBJECT", "pipeline.events"),
		NATSQueueGroup:   getEnv("NATS_QUEUE_GROUP", "pipeline-workers"),
		WorkerCount:      getEnvInt("WORKER_COUNT", 4),
		QueueBuffer:      getEnvInt("QUEUE_BUFFER", 64),

		StorageDir:     getEnv("STORAGE_DIR", "./data/assets"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		PipelineAngles:      getEnvInt("PIPELINE_ANGLES", 3),
		PipelineConcurrency: getEnvInt("PIPELINE_CONCURRENCY", 4),
		FallbackScore:       getEnvInt("PIPELINE_FALLBACK_SCORE", 40),
		GeneratorRetries:    getEnvInt("GENERATOR_MAX_RETRIES", 3),
		GeneratorTimeout:    time.Second * time.Duration(getEnvInt("GENERATOR_TIMEOUT_SECONDS", 60)),

		TracingEnabled: getEnvBool("OTEL_ENABLED", false),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),

		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.QueueBackend {
	case QueueLocal:
	case QueueNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("NATS_URL is required for the nats queue")
		}
		if cfg.StoreBackend == StoreMemory {
			return nil, fmt.Errorf("the nats queue needs a shared store, set STORE_BACKEND to postgres or redis")
		}
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
