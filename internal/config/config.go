package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultRegistryDBPath = "prophet.db"
	defaultArtifactDir    = "artifacts"
	defaultBrokerKind     = "memory"
	defaultRedisAddr      = "localhost:6379"
	defaultQueueKey       = "prophet:jobs:pending"
	defaultResultTTL      = time.Hour
	defaultWorkers        = 2
	defaultMaxJobsPerRun  = 10
	defaultReportInterval = 250 * time.Millisecond
	defaultDequeueTimeout = 5 * time.Second

	envListenAddr     = "PROPHET_LISTEN_ADDR"
	envRegistryDBPath = "PROPHET_DB_PATH"
	envArtifactDir    = "PROPHET_ARTIFACT_DIR"
	envBrokerKind     = "PROPHET_BROKER"
	envRedisAddr      = "PROPHET_REDIS_ADDR"
	envRedisPassword  = "PROPHET_REDIS_PASSWORD"
	envRedisDB        = "PROPHET_REDIS_DB"
	envQueueKey       = "PROPHET_QUEUE_KEY"
	envResultTTL      = "PROPHET_RESULT_TTL"
	envWorkers        = "PROPHET_WORKERS"
	envMaxJobsPerRun  = "PROPHET_MAX_JOBS_PER_RUN"
	envReportInterval = "PROPHET_REPORT_INTERVAL"
	envDequeueTimeout = "PROPHET_DEQUEUE_TIMEOUT"
	envLogLevel       = "PROPHET_LOG_LEVEL"
)

// Broker kind constants.
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr     string
	RegistryDBPath string
	ArtifactDir    string
	BrokerKind     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	QueueKey       string
	ResultTTL      time.Duration
	Workers        int
	MaxJobsPerRun  int
	ReportInterval time.Duration
	DequeueTimeout time.Duration
	LogLevel       slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		RegistryDBPath: defaultRegistryDBPath,
		ArtifactDir:    defaultArtifactDir,
		BrokerKind:     defaultBrokerKind,
		RedisAddr:      defaultRedisAddr,
		QueueKey:       defaultQueueKey,
		ResultTTL:      defaultResultTTL,
		Workers:        defaultWorkers,
		MaxJobsPerRun:  defaultMaxJobsPerRun,
		ReportInterval: defaultReportInterval,
		DequeueTimeout: defaultDequeueTimeout,
		LogLevel:       slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envRegistryDBPath); v != "" {
		cfg.RegistryDBPath = v
	}
	if v := os.Getenv(envArtifactDir); v != "" {
		cfg.ArtifactDir = v
	}
	if v := os.Getenv(envBrokerKind); v != "" {
		cfg.BrokerKind = strings.ToLower(v)
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(envRedisPassword); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv(envRedisDB); v != "" {
		cfg.RedisDB = parseInt(v, 0)
	}
	if v := os.Getenv(envQueueKey); v != "" {
		cfg.QueueKey = v
	}
	if v := os.Getenv(envResultTTL); v != "" {
		cfg.ResultTTL = parseDuration(v, defaultResultTTL)
	}
	if v := os.Getenv(envWorkers); v != "" {
		cfg.Workers = parseInt(v, defaultWorkers)
	}
	if v := os.Getenv(envMaxJobsPerRun); v != "" {
		cfg.MaxJobsPerRun = parseInt(v, defaultMaxJobsPerRun)
	}
	if v := os.Getenv(envReportInterval); v != "" {
		cfg.ReportInterval = parseDuration(v, defaultReportInterval)
	}
	if v := os.Getenv(envDequeueTimeout); v != "" {
		cfg.DequeueTimeout = parseDuration(v, defaultDequeueTimeout)
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
