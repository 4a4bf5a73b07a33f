package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string         `mapstructure:"app_env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LiveKit  LiveKitConfig  `mapstructure:"livekit"`
	AI       AIConfig       `mapstructure:"ai"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// StoreConfig selects the persistence adapter: "postgres" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// QueueConfig selects the command queue backend: "postgres", "redis" or "memory".
type QueueConfig struct {
	Driver   string `mapstructure:"driver"`
	RedisURL string `mapstructure:"redis_url"`
}

type WorkerConfig struct {
	Inline       bool          `mapstructure:"inline"`
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RetryBase    time.Duration `mapstructure:"retry_base"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Visibility   time.Duration `mapstructure:"visibility"`
}

type AuthConfig struct {
	AccessSecret string `mapstructure:"access_secret"`
}

type LiveKitConfig struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

type AIConfig struct {
	OpenAIKey       string `mapstructure:"openai_key"`
	OpenAIBaseURL   string `mapstructure:"openai_base_url"`
	SummaryModel    string `mapstructure:"summary_model"`
	MaxAudioSeconds int    `mapstructure:"max_audio_seconds"`
	MaxFileMB       int    `mapstructure:"max_file_mb"`
	WorkDir         string `mapstructure:"work_dir"`
}

type ArchiveConfig struct {
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
	S3Prefix string `mapstructure:"s3_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// envBindings maps config keys to the environment variables deployments set.
var envBindings = map[string][]string{
	"app_env":              {"APP_ENV", "NODE_ENV"},
	"server.host":          {"HOST"},
	"server.port":          {"PORT"},
	"server.cors_origins":  {"CORS_ORIGINS"},
	"database.url":         {"DATABASE_URL"},
	"database.host":        {"POSTGRES_HOST"},
	"database.port":        {"POSTGRES_PORT"},
	"database.user":        {"POSTGRES_USER"},
	"database.password":    {"POSTGRES_PASSWORD"},
	"database.database":    {"POSTGRES_DB"},
	"database.sslmode":     {"POSTGRES_SSLMODE"},
	"store.driver":         {"STORE_DRIVER"},
	"queue.driver":         {"QUEUE_DRIVER"},
	"queue.redis_url":      {"REDIS_URL"},
	"worker.inline":        {"WORKER_INLINE"},
	"worker.concurrency":   {"WORKER_CONCURRENCY"},
	"worker.poll_interval": {"WORKER_POLL_INTERVAL"},
	"worker.retry_base":    {"WORKER_RETRY_BASE"},
	"worker.retry_max":     {"WORKER_RETRY_MAX"},
	"worker.max_attempts":  {"WORKER_MAX_ATTEMPTS"},
	"worker.visibility":    {"WORKER_VISIBILITY_TIMEOUT"},
	"auth.access_secret":   {"JWT_ACCESS_SECRET"},
	"livekit.url":          {"LIVEKIT_URL"},
	"livekit.api_key":      {"LIVEKIT_API_KEY"},
	"livekit.api_secret":   {"LIVEKIT_API_SECRET"},
	"ai.openai_key":        {"OPENAI_API_KEY"},
	"ai.openai_base_url":   {"OPENAI_BASE_URL"},
	"ai.summary_model":     {"AI_SUMMARY_MODEL"},
	"ai.max_audio_seconds": {"AI_MAX_AUDIO_SECONDS"},
	"ai.max_file_mb":       {"AI_MAX_FILE_MB"},
	"ai.work_dir":          {"AI_WORK_DIR"},
	"archive.s3_bucket":    {"ARCHIVE_S3_BUCKET"},
	"archive.s3_region":    {"ARCHIVE_S3_REGION", "AWS_REGION"},
	"archive.s3_prefix":    {"ARCHIVE_S3_PREFIX"},
	"log.level":            {"LOG_LEVEL"},
	"log.format":           {"LOG_FORMAT"},
	"log.file":             {"LOG_FILE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "neoxmeet")
	v.SetDefault("database.database", "neoxmeet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("queue.driver", "postgres")
	v.SetDefault("worker.inline", false)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.retry_base", "1s")
	v.SetDefault("worker.retry_max", "1m")
	v.SetDefault("worker.max_attempts", 5)
	v.SetDefault("worker.visibility", "2m")
	v.SetDefault("ai.summary_model", "gpt-4o-mini")
	v.SetDefault("ai.max_audio_seconds", 600)
	v.SetDefault("ai.max_file_mb", 25)
	v.SetDefault("ai.work_dir", os.TempDir())
	v.SetDefault("archive.s3_prefix", "clips/")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads defaults, an optional config file and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".neoxmeet"))
	}

	setDefaults(v)
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	c.Log.Format = strings.ToLower(c.Log.Format)
	if c.Worker.Concurrency < 1 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.MaxAttempts < 1 {
		c.Worker.MaxAttempts = 1
	}
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// MaxFileBytes is the upload size limit in bytes.
func (c AIConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) * 1024 * 1024
}

// Validate checks that the settings each selected driver needs are present.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Queue.Driver {
	case "postgres":
		if c.Store.Driver != "postgres" {
			problems = append(problems, "QUEUE_DRIVER=postgres requires STORE_DRIVER=postgres")
		}
	case "redis":
		if c.Queue.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required for QUEUE_DRIVER=redis")
		}
	case "memory":
		if !c.Worker.Inline {
			problems = append(problems, "QUEUE_DRIVER=memory requires WORKER_INLINE=true")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown QUEUE_DRIVER %q", c.Queue.Driver))
	}

	if c.Auth.AccessSecret == "" {
		problems = append(problems, "JWT_ACCESS_SECRET is required")
	}
	if c.LiveKit.URL == "" || c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		problems = append(problems, "LIVEKIT_URL, LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if c.AI.MaxFileMB <= 0 {
		problems = append(problems, "AI_MAX_FILE_MB must be positive")
	}
	if c.AI.MaxAudioSeconds <= 0 {
		problems = append(problems, "AI_MAX_AUDIO_SECONDS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
