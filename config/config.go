// Package config loads process configuration: environment variables first,
// optionally merged over a YAML file. The loaded Config is constructed once
// at startup and passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OpenAIConfig configures the OpenAI model adapter.
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// AnthropicConfig configures the Anthropic model adapter.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// TavilyConfig configures the web search client.
type TavilyConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// MongoConfig configures the persistence adapter. An unreachable URI is not
// an error: the store degrades to no-op writes.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or text
}

// Config is the full process configuration.
type Config struct {
	// Provider selects the model adapter: "openai" (default) or "anthropic".
	Provider string `mapstructure:"provider"`

	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Tavily    TavilyConfig    `mapstructure:"tavily"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`

	// CallTimeout bounds each external model or search call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads configuration from the environment, merged over the optional
// YAML file at path (skipped when path is empty or missing). Environment
// variables use underscore paths: OPENAI_API_KEY, LLM_PROVIDER, MONGODB_URI,
// and so on.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "agent")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("call_timeout", time.Minute)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Historical env names take precedence over the dotted scheme.
	bindings := map[string]string{
		"provider":          "LLM_PROVIDER",
		"openai.api_key":    "OPENAI_API_KEY",
		"openai.model":      "OPENAI_MODEL",
		"anthropic.api_key": "ANTHROPIC_API_KEY",
		"anthropic.model":   "ANTHROPIC_MODEL",
		"tavily.api_key":    "TAVILY_API_KEY",
		"mongo.uri":         "MONGODB_URI",
		"mongo.database":    "MONGODB_DATABASE",
		"server.host":       "HOST",
		"server.port":       "PORT",
		"log.level":         "LOG_LEVEL",
		"log.format":        "LOG_FORMAT",
		"call_timeout":      "CALL_TIMEOUT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the keys required for the selected provider. The Mongo URI
// is deliberately not required: missing persistence degrades, it never
// blocks startup.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider openai")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider anthropic")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Tavily.APIKey == "" {
		return fmt.Errorf("TAVILY_API_KEY is required")
	}
	return nil
}
