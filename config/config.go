package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config is built once at process start and passed to every component.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Completion CompletionConfig `yaml:"completion"`
	Events     EventsConfig     `yaml:"events"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port         int      `yaml:"port"`
	AllowOrigins []string `yaml:"allowOrigins"`
	// MaxUploadBytes bounds CSV uploads.
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
}

type StorageConfig struct {
	// Backend selects the blob store: "table", "bucket" or "memory".
	Backend          string `yaml:"backend"`
	ConnectionString string `yaml:"connectionString"`
	Table            string `yaml:"table"`
	Bucket           string `yaml:"bucket"`
	Endpoint         string `yaml:"endpoint"`
	CredentialsFile  string `yaml:"credentialsFile"`
	FetchConcurrency int    `yaml:"fetchConcurrency"`
}

type RedisConfig struct {
	ConnectionString string        `yaml:"connectionString"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	DeduperTTL       time.Duration `yaml:"deduperTTL"`
	DraftTTL         time.Duration `yaml:"draftTTL"`
	LockTTL          time.Duration `yaml:"lockTTL"`
}

type AuthConfig struct {
	Domain         string        `yaml:"domain"`
	Audience       string        `yaml:"audience"`
	TestMode       bool          `yaml:"testMode"`
	TestSecret     string        `yaml:"testSecret"`
	JWKSCacheTTL   time.Duration `yaml:"jwksCacheTTL"`
	InternalSecret string        `yaml:"internalSecret"`
}

type CompletionConfig struct {
	// Provider is "openai" for chat-completions endpoints or "gemini".
	Provider    string        `yaml:"provider"`
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EventsConfig struct {
	Queue          string        `yaml:"queue"`
	Workers        int           `yaml:"workers"`
	Buffer         int           `yaml:"buffer"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
	HandoffTimeout time.Duration `yaml:"handoffTimeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			AllowOrigins:   []string{"*"},
			MaxUploadBytes: 8 << 20,
		},
		Storage: StorageConfig{
			Backend:          "table",
			Table:            "blobs",
			FetchConcurrency: 16,
		},
		Redis: RedisConfig{
			CacheTTL:   5 * time.Minute,
			DeduperTTL: 24 * time.Hour,
			DraftTTL:   12 * time.Hour,
			LockTTL:    10 * time.Second,
		},
		Auth: AuthConfig{
			JWKSCacheTTL: 15 * time.Minute,
		},
		Completion: CompletionConfig{
			Provider:    "openai",
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			MaxTokens:   500,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Events: EventsConfig{
			Workers:        4,
			Buffer:         1024,
			PublishTimeout: 30 * time.Second,
			HandoffTimeout: 15 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("SALES_PORTAL_CONFIG"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("invalid %s: must be a positive integer", key))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				errs = append(errs, fmt.Errorf("invalid %s: %q", key, v))
				return
			}
			*dst = d
		}
	}

	num("FUNCTIONS_CUSTOMHANDLER_PORT", &cfg.Server.Port)
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = splitList(v)
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			errs = append(errs, errors.New("invalid MAX_UPLOAD_BYTES"))
		} else {
			cfg.Server.MaxUploadBytes = n
		}
	}

	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("STORAGE_CONNECTION_STRING", &cfg.Storage.ConnectionString)
	str("BLOBS_TABLE", &cfg.Storage.Table)
	str("BLOB_BUCKET", &cfg.Storage.Bucket)
	str("BLOB_ENDPOINT", &cfg.Storage.Endpoint)
	str("BLOB_CREDENTIALS_FILE", &cfg.Storage.CredentialsFile)
	num("STORAGE_FETCH_CONCURRENCY", &cfg.Storage.FetchConcurrency)

	str("REDIS_CONNECTION_STRING", &cfg.Redis.ConnectionString)
	dur("CACHE_TTL", &cfg.Redis.CacheTTL)
	dur("DEDUPER_TTL", &cfg.Redis.DeduperTTL)
	dur("DRAFT_TTL", &cfg.Redis.DraftTTL)
	dur("LOCK_TTL", &cfg.Redis.LockTTL)

	str("AUTH0_DOMAIN", &cfg.Auth.Domain)
	str("AUTH0_AUDIENCE", &cfg.Auth.Audience)
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		cfg.Auth.TestMode = true
	}
	str("TEST_JWT_SECRET", &cfg.Auth.TestSecret)
	dur("JWKS_CACHE_TTL", &cfg.Auth.JWKSCacheTTL)
	str("INTERNAL_SHARED_SECRET", &cfg.Auth.InternalSecret)

	str("COMPLETION_PROVIDER", &cfg.Completion.Provider)
	str("COMPLETION_ENDPOINT", &cfg.Completion.Endpoint)
	str("COMPLETION_API_KEY", &cfg.Completion.APIKey)
	str("COMPLETION_MODEL", &cfg.Completion.Model)
	num("COMPLETION_MAX_TOKENS", &cfg.Completion.MaxTokens)
	if v := os.Getenv("COMPLETION_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			errs = append(errs, errors.New("invalid COMPLETION_TEMPERATURE"))
		} else {
			cfg.Completion.Temperature = f
		}
	}
	dur("COMPLETION_TIMEOUT", &cfg.Completion.Timeout)

	str("TASK_EVENTS_QUEUE", &cfg.Events.Queue)
	num("EVENTS_WORKERS", &cfg.Events.Workers)
	num("EVENTS_BUFFER", &cfg.Events.Buffer)
	dur("EVENTS_PUBLISH_TIMEOUT", &cfg.Events.PublishTimeout)
	dur("EVENTS_HANDOFF_TIMEOUT", &cfg.Events.HandoffTimeout)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		cfg.Log.Level = "debug"
	}

	return errors.Join(errs...)
}

// Validate reports settings that are required for the selected backends.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "table":
		if c.Storage.ConnectionString == "" || c.Storage.Table == "" {
			errs = append(errs, errors.New("missing storage config"))
		}
	case "bucket":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("missing BLOB_BUCKET"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}
	if c.Events.Queue != "" && c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("TASK_EVENTS_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	if c.Auth.TestMode {
		if c.Auth.TestSecret == "" {
			errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1"))
		}
	} else if c.Auth.Domain == "" || c.Auth.Audience == "" {
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	switch c.Completion.Provider {
	case "openai":
		if c.Completion.Endpoint == "" {
			errs = append(errs, errors.New("missing COMPLETION_ENDPOINT"))
		}
	case "gemini":
		if c.Completion.APIKey == "" {
			errs = append(errs, errors.New("missing COMPLETION_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported COMPLETION_PROVIDER %q", c.Completion.Provider))
	}
	return errors.Join(errs...)
}

// RedisOptions parses the Redis connection string. Both redis:// URLs and the
// Azure "host:port,password=...,ssl=True" form are accepted. An empty string
// returns nil.
func (c RedisConfig) RedisOptions() *redis.Options {
	conn := strings.TrimSpace(c.ConnectionString)
	if conn == "" {
		return nil
	}
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
