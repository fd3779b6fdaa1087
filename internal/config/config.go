package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"reblurb-gateway/internal/cache"
	"reblurb-gateway/internal/llm"
	"reblurb-gateway/internal/summary"
)

// EnvPrefix prefixes every environment override, e.g.
// REBLURB_STORE_BACKEND for store.backend.
const EnvPrefix = "REBLURB"

// Config stores all configuration of the gateway.
// The values are read by viper from defaults, an optional config file and
// environment variables, in increasing precedence.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
	Summary   SummaryConfig   `mapstructure:"summary"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Backend       string        `mapstructure:"backend"` // memory | redis | mongo | postgres
	Timeout       time.Duration `mapstructure:"timeout"`
	Prefix        string        `mapstructure:"prefix"`
	Collection    string        `mapstructure:"collection"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database"`
	PostgresDSN   string        `mapstructure:"postgres_dsn"`
}

type GeneratorConfig struct {
	Provider               string        `mapstructure:"provider"` // openai | anthropic | compatible
	Model                  string        `mapstructure:"model"`
	APIKey                 string        `mapstructure:"api_key"`
	BaseURL                string        `mapstructure:"base_url"`
	TokenLimit             int           `mapstructure:"token_limit"`
	ReservedResponseTokens int           `mapstructure:"reserved_response_tokens"`
	Timeout                time.Duration `mapstructure:"timeout"`
	MaxRetries             int           `mapstructure:"max_retries"`
}

type PromptsConfig struct {
	Sentences string `mapstructure:"sentences"`
	Bullets   string `mapstructure:"bullets"`
	// UnknownPromptType is "reject" or the style unknown values fall back to.
	UnknownPromptType string `mapstructure:"unknown_prompt_type"`
}

type SummaryConfig struct {
	Coalesce bool `mapstructure:"coalesce"`
}

// CharLimit is the review content budget for the configured model.
func (c GeneratorConfig) CharLimit() int {
	return summary.CharLimit(c.TokenLimit, c.ReservedResponseTokens)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("log.env", "production")
	v.SetDefault("log.level", "info")

	v.SetDefault("store.backend", cache.BackendMemory)
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("store.prefix", "reblurb")
	v.SetDefault("store.collection", "productSummaries")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_database", "reblurb")
	v.SetDefault("store.postgres_dsn", "")

	// gpt-3.5-turbo-0125 accepts 16k tokens per request; 250 are kept for
	// the answer.
	v.SetDefault("generator.provider", llm.ProviderOpenAI)
	v.SetDefault("generator.model", "gpt-3.5-turbo-0125")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.base_url", "")
	v.SetDefault("generator.token_limit", 16000)
	v.SetDefault("generator.reserved_response_tokens", 250)
	v.SetDefault("generator.timeout", "30s")
	v.SetDefault("generator.max_retries", 2)

	v.SetDefault("prompts.sentences", summary.DefaultSentencesPrompt)
	v.SetDefault("prompts.bullets", summary.DefaultBulletsPrompt)
	v.SetDefault("prompts.unknown_prompt_type", "reject")

	v.SetDefault("summary.coalesce", false)
}

// bindCompatEnv keeps the plain variable names used by the deployment
// (Cloud Run PORT, provider API keys, ENV/LOG_LEVEL) working.
func bindCompatEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":        {EnvPrefix + "_SERVER_PORT", "PORT"},
		"generator.api_key":  {EnvPrefix + "_GENERATOR_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_API_KEY"},
		"generator.base_url": {EnvPrefix + "_GENERATOR_BASE_URL", "LLM_BASE_URL"},
		"store.redis_addr":   {EnvPrefix + "_STORE_REDIS_ADDR", "REDIS_ADDR"},
		"log.env":            {EnvPrefix + "_LOG_ENV", "ENV"},
		"log.level":          {EnvPrefix + "_LOG_LEVEL", "LOG_LEVEL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration. configPath may be empty, in which case only
// defaults and environment variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindCompatEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with. Credentials are
// checked by the generator constructors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case cache.BackendMemory, cache.BackendRedis, cache.BackendMongo, cache.BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	switch c.Generator.Provider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderCompatible:
	default:
		errs = append(errs, fmt.Errorf("generator.provider: unknown provider %q", c.Generator.Provider))
	}
	if c.Generator.Model == "" {
		errs = append(errs, errors.New("generator.model is required"))
	}
	if c.Generator.CharLimit() <= 0 {
		errs = append(errs, fmt.Errorf("generator.token_limit (%d) must exceed generator.reserved_response_tokens (%d)",
			c.Generator.TokenLimit, c.Generator.ReservedResponseTokens))
	}
	if _, err := cache.NewKeyBuilder(c.Prompts.UnknownPromptType); err != nil {
		errs = append(errs, fmt.Errorf("prompts.unknown_prompt_type: %w", err))
	}

	return errors.Join(errs...)
}

// CacheConfig maps the store section onto cache.Open's config.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Backend:       c.Store.Backend,
		Timeout:       c.Store.Timeout,
		Prefix:        c.Store.Prefix,
		Collection:    c.Store.Collection,
		RedisAddr:     c.Store.RedisAddr,
		MongoURI:      c.Store.MongoURI,
		MongoDatabase: c.Store.MongoDatabase,
		PostgresDSN:   c.Store.PostgresDSN,
	}
}

// LLMConfig maps the generator section onto llm.NewGenerator's config.
// The reserved response tokens double as the completion cap.
func (c *Config) LLMConfig() llm.GeneratorConfig {
	return llm.GeneratorConfig{
		Provider:   c.Generator.Provider,
		Model:      c.Generator.Model,
		APIKey:     c.Generator.APIKey,
		BaseURL:    c.Generator.BaseURL,
		MaxTokens:  c.Generator.ReservedResponseTokens,
		Timeout:    c.Generator.Timeout,
		MaxRetries: c.Generator.MaxRetries,
	}
}

// KeyBuilder returns the key policy for prompts.unknown_prompt_type.
func (c *Config) KeyBuilder() (cache.KeyBuilder, error) {
	return cache.NewKeyBuilder(c.Prompts.UnknownPromptType)
}

func (c *Config) SummaryPrompts() summary.Prompts {
	return summary.Prompts{
		Sentences: c.Prompts.Sentences,
		Bullets:   c.Prompts.Bullets,
	}
}
