package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultLLMModel          = "claude-sonnet-4-5"
	DefaultSearchBaseURL     = "https://serpapi.com"
	DefaultDocumentBaseURL   = "https://patentimages.storage.googleapis.com"
	DefaultSearchConcurrency = 5
	DefaultSearchPageSize    = 20
	DefaultMaxShortlist      = 5
)

type Config struct {
	HTTPAddr string
	WebDir   string

	LogLevel  string
	LogFormat string

	AnthropicAPIKey string
	LLMModel        string
	LLMTimeout      time.Duration

	SerpAPIKey        string
	SearchBaseURL     string
	DocumentBaseURL   string
	SearchConcurrency int
	SearchPageSize    int
	SearchTimeout     time.Duration
	FetchTimeout      time.Duration
	MaxShortlist      int
	RetryBaseDelay    time.Duration

	SearchCachePath string
	SearchCacheTTL  time.Duration

	JobStore  string
	RedisAddr string
	JobTTL    time.Duration

	OTLPEndpoint string
}

// Load reads .env (when present) and the process environment. Missing API keys
// are not an error here; the gateways report them when they are first used.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		WebDir:            v.GetString("WEB_DIR"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
		AnthropicAPIKey:   strings.TrimSpace(v.GetString("ANTHROPIC_API_KEY")),
		LLMModel:          strings.TrimSpace(v.GetString("PRIOR_ART_LLM_MODEL")),
		LLMTimeout:        v.GetDuration("PRIOR_ART_LLM_TIMEOUT"),
		SerpAPIKey:        strings.TrimSpace(v.GetString("SERPAPI_API_KEY")),
		SearchBaseURL:     v.GetString("SEARCH_BASE_URL"),
		DocumentBaseURL:   v.GetString("DOCUMENT_BASE_URL"),
		SearchConcurrency: v.GetInt("PRIOR_ART_SEARCH_CONCURRENCY"),
		SearchPageSize:    v.GetInt("PRIOR_ART_SEARCH_PAGE_SIZE"),
		SearchTimeout:     v.GetDuration("PRIOR_ART_SEARCH_TIMEOUT"),
		FetchTimeout:      v.GetDuration("PRIOR_ART_FETCH_TIMEOUT"),
		MaxShortlist:      v.GetInt("PRIOR_ART_MAX_SHORTLIST"),
		RetryBaseDelay:    v.GetDuration("PRIOR_ART_RETRY_BASE_DELAY"),
		SearchCachePath:   strings.TrimSpace(v.GetString("SEARCH_CACHE_PATH")),
		SearchCacheTTL:    v.GetDuration("SEARCH_CACHE_TTL"),
		JobStore:          strings.ToLower(strings.TrimSpace(v.GetString("JOB_STORE"))),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		JobTTL:            v.GetDuration("JOB_TTL"),
		OTLPEndpoint:      strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8090")
	v.SetDefault("WEB_DIR", "web")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("PRIOR_ART_LLM_MODEL", DefaultLLMModel)
	v.SetDefault("PRIOR_ART_LLM_TIMEOUT", 5*time.Minute)
	v.SetDefault("SEARCH_BASE_URL", DefaultSearchBaseURL)
	v.SetDefault("DOCUMENT_BASE_URL", DefaultDocumentBaseURL)
	v.SetDefault("PRIOR_ART_SEARCH_CONCURRENCY", DefaultSearchConcurrency)
	v.SetDefault("PRIOR_ART_SEARCH_PAGE_SIZE", DefaultSearchPageSize)
	v.SetDefault("PRIOR_ART_SEARCH_TIMEOUT", 45*time.Second)
	v.SetDefault("PRIOR_ART_FETCH_TIMEOUT", 45*time.Second)
	v.SetDefault("PRIOR_ART_MAX_SHORTLIST", DefaultMaxShortlist)
	v.SetDefault("PRIOR_ART_RETRY_BASE_DELAY", 5*time.Second)
	v.SetDefault("SEARCH_CACHE_TTL", 24*time.Hour)
	v.SetDefault("JOB_STORE", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("JOB_TTL", 24*time.Hour)
}

func applyDefaults(cfg *Config) {
	if cfg.LLMModel == "" {
		cfg.LLMModel = DefaultLLMModel
	}
	if cfg.SearchConcurrency <= 0 {
		cfg.SearchConcurrency = DefaultSearchConcurrency
	}
	if cfg.SearchPageSize <= 0 {
		cfg.SearchPageSize = DefaultSearchPageSize
	}
	if cfg.MaxShortlist <= 0 {
		cfg.MaxShortlist = DefaultMaxShortlist
	}
	if cfg.RetryBaseDelay < 0 {
		cfg.RetryBaseDelay = 0
	}
	if cfg.JobStore == "" {
		cfg.JobStore = "memory"
	}
}

func (c *Config) Validate() error {
	switch c.JobStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("JOB_STORE must be memory or redis, got %q", c.JobStore)
	}
	if c.JobStore == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("REDIS_ADDR is required when JOB_STORE=redis")
	}
	if c.LLMTimeout <= 0 || c.SearchTimeout <= 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
