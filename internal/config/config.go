package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AI        AIConfig        `mapstructure:"ai"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Dialogue  DialogueConfig  `mapstructure:"dialogue"`
	Media     MediaConfig     `mapstructure:"media"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Runtime flags, set from the command line rather than the file.
	ForceMigrate bool   `mapstructure:"-"`
	File         string `mapstructure:"-"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port" validate:"required"`
	Mode        string `mapstructure:"mode" validate:"oneof=debug release test"`
	WatchConfig bool   `mapstructure:"watch_config"`
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=mysql postgres"`
	Host      string `mapstructure:"host" validate:"required"`
	Port      int    `mapstructure:"port" validate:"required"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DBName    string `mapstructure:"dbname" validate:"required"`
	Charset   string `mapstructure:"charset"`
	ParseTime bool   `mapstructure:"parsetime"`
	SSLMode   string `mapstructure:"sslmode"`
	LogSQL    bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret            string        `mapstructure:"secret" validate:"required"`
	ExpireTime        time.Duration `mapstructure:"expire_hours"`
	RefreshExpireDays int           `mapstructure:"refresh_expire_days" validate:"gt=0"`
	CookieSecure      bool          `mapstructure:"cookie_secure"`
}

type StorageConfig struct {
	Type           string        `mapstructure:"type" validate:"oneof=local minio oss"`
	LocalPath      string        `mapstructure:"local_path"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	MinioEndpoint  string        `mapstructure:"minio_endpoint"`
	MinioAccessID  string        `mapstructure:"minio_access_key"`
	MinioSecret    string        `mapstructure:"minio_secret_key"`
	MinioBucket    string        `mapstructure:"minio_bucket"`
	MinioSecure    bool          `mapstructure:"minio_secure"`
	OSSEndpoint    string        `mapstructure:"oss_endpoint"`
	OSSAccessKey   string        `mapstructure:"oss_access_key"`
	OSSSecretKey   string        `mapstructure:"oss_secret_key"`
	OSSBucket      string        `mapstructure:"oss_bucket"`
	UploadAttempts uint          `mapstructure:"upload_attempts" validate:"gte=1"`
	UploadBackoff  time.Duration `mapstructure:"upload_backoff"`
}

type AIConfig struct {
	Provider       string        `mapstructure:"provider" validate:"oneof=openai gemini"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model" validate:"required"`
	ChatModel      string        `mapstructure:"chat_model" validate:"required"`
	EmbeddingModel string        `mapstructure:"embedding_model" validate:"required"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	GeminiModel    string        `mapstructure:"gemini_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     uint          `mapstructure:"max_retries"`
}

type SpeechConfig struct {
	Timeout   time.Duration   `mapstructure:"timeout"`
	Deepgram  DeepgramConfig  `mapstructure:"deepgram"`
	SpeechKit SpeechKitConfig `mapstructure:"speechkit"`
}

type DeepgramConfig struct {
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type SpeechKitConfig struct {
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
	IAMToken string `mapstructure:"iam_token"`
	FolderID string `mapstructure:"folder_id"`
	Lang     string `mapstructure:"lang"`
	Format   string `mapstructure:"format"`
}

type VectorConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url" validate:"required_if=Enabled true"`
	APIKey      string `mapstructure:"api_key"`
	Collection  string `mapstructure:"collection"`
	Dimension   int    `mapstructure:"dimension" validate:"gt=0"`
	SearchLimit int    `mapstructure:"search_limit" validate:"gt=0"`
}

// DialogueConfig holds the tunables of the exam and tutoring dialogue.
// They are reloadable at runtime.
type DialogueConfig struct {
	GradingWindow        int           `mapstructure:"grading_window" validate:"gt=0"`
	TutoringWindow       int           `mapstructure:"tutoring_window" validate:"gt=0"`
	OffTopicContextLimit int           `mapstructure:"off_topic_context_limit" validate:"gt=0"`
	TutoringContextLimit int           `mapstructure:"tutoring_context_limit" validate:"gt=0"`
	ChunkSize            int           `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap         int           `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TurnTimeout          time.Duration `mapstructure:"turn_timeout"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
}

type MediaConfig struct {
	ProbeEnabled bool  `mapstructure:"probe_enabled"`
	MaxUploadMB  int64 `mapstructure:"max_upload_mb" validate:"gt=0"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests" validate:"gt=0"`
	WindowMinutes int `mapstructure:"window_minutes" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_expire_days", 30)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("storage.public_base_url", "http://localhost:8080")
	v.SetDefault("storage.upload_attempts", 3)
	v.SetDefault("storage.upload_backoff", "1s")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.chat_model", "gpt-4o")
	v.SetDefault("ai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.gemini_model", "gemini-1.5-flash")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("speech.timeout", "30s")
	v.SetDefault("speech.deepgram.base_url", "https://api.deepgram.com")
	v.SetDefault("speech.deepgram.model", "nova-2")
	v.SetDefault("speech.deepgram.language", "ru")
	v.SetDefault("speech.speechkit.base_url", "https://tts.api.cloud.yandex.net")
	v.SetDefault("speech.speechkit.lang", "ru-RU")
	v.SetDefault("speech.speechkit.format", "oggopus")
	v.SetDefault("vector.collection", "subject_materials")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.search_limit", 10)
	v.SetDefault("dialogue.grading_window", 5)
	v.SetDefault("dialogue.tutoring_window", 10)
	v.SetDefault("dialogue.off_topic_context_limit", 1000)
	v.SetDefault("dialogue.tutoring_context_limit", 2000)
	v.SetDefault("dialogue.chunk_size", 1000)
	v.SetDefault("dialogue.chunk_overlap", 200)
	v.SetDefault("dialogue.turn_timeout", "2m")
	v.SetDefault("dialogue.lock_ttl", "3m")
	v.SetDefault("dialogue.cache_ttl", "5m")
	v.SetDefault("media.max_upload_mb", 200)
	v.SetDefault("tracing.service_name", "oral-exam-backend")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

var envBindings = map[string]string{
	"database.driver":            "DATABASE_DRIVER",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.dbname":            "DATABASE_NAME",
	"jwt.secret":                 "JWT_SECRET",
	"redis.enabled":              "REDIS_ENABLED",
	"redis.host":                 "REDIS_HOST",
	"redis.port":                 "REDIS_PORT",
	"redis.password":             "REDIS_PASSWORD",
	"server.mode":                "SERVER_MODE",
	"ai.provider":                "AI_PROVIDER",
	"ai.base_url":                "AI_BASE_URL",
	"ai.api_key":                 "OPENAI_API_KEY",
	"ai.model":                   "AI_MODEL",
	"ai.gemini_api_key":          "GEMINI_API_KEY",
	"speech.deepgram.api_key":    "DEEPGRAM_API_KEY",
	"speech.speechkit.iam_token": "YANDEX_IAM_TOKEN",
	"speech.speechkit.folder_id": "YANDEX_FOLDER_ID",
	"vector.url":                 "QDRANT_URL",
	"vector.api_key":             "QDRANT_API_KEY",
	"storage.type":               "STORAGE_TYPE",
	"storage.public_base_url":    "PUBLIC_BASE_URL",
	"storage.oss_endpoint":       "OSS_ENDPOINT",
	"storage.oss_access_key":     "OSS_ACCESS_KEY",
	"storage.oss_secret_key":     "OSS_SECRET_KEY",
	"storage.oss_bucket":         "OSS_BUCKET",
	"storage.minio_endpoint":     "MINIO_ENDPOINT",
	"storage.minio_access_key":   "MINIO_ACCESS_KEY",
	"storage.minio_secret_key":   "MINIO_SECRET_KEY",
	"storage.minio_bucket":       "MINIO_BUCKET",
	"tracing.enabled":            "TRACING_ENABLED",
	"tracing.collector_endpoint": "TRACING_COLLECTOR_ENDPOINT",
}

// LoadConfig reads config.yaml from a directory, or the given file when path
// points to one, then applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(path)
		v.SetConfigName("config")
	}

	setDefaults(v)

	v.SetEnvPrefix("EXAMPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	validate, trans, err := newValidator()
	if err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, e := range validationErrors {
			msgs = append(msgs, e.Translate(trans))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
	}
	return nil
}

func (c *Config) AccessTokenTTL() time.Duration {
	return c.JWT.ExpireTime
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.JWT.RefreshExpireDays) * 24 * time.Hour
}
