package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	StaticDir   string   `mapstructure:"static_dir"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// RateLimit is the number of API requests a client may make per minute.
	RateLimit int `mapstructure:"rate_limit"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, mongo or memory
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
	Name   string `mapstructure:"name"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LLMConfig struct {
	Provider     string        `mapstructure:"provider"` // langchain or openai
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Keywords   []string      `mapstructure:"keywords"`
}

type UploadConfig struct {
	MaxBytes    int64 `mapstructure:"max_bytes"`
	MaxChars    int   `mapstructure:"max_chars"`
	MaxPDFPages int   `mapstructure:"max_pdf_pages"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

const DefaultSystemPrompt = "You are a helpful AI assistant."

// LoadDotenv loads the first .env file found in paths. A missing file is not an error.
func LoadDotenv(paths ...string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, godotenv.Load(p)
		}
	}
	return "", nil
}

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment. Keys map to ORION_<SECTION>_<KEY>; a few well-known unprefixed
// variables are honoured as well.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 60)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "orion.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.name", "orion")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("llm.provider", "langchain")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("llm.timeout", time.Duration(0))
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.endpoint", "https://api.tavily.com/search")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.keywords", []string{})
	v.SetDefault("upload.max_bytes", int64(10<<20))
	v.SetDefault("upload.max_chars", 50000)
	v.SetDefault("upload.max_pdf_pages", 50)
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	// Enable environment variable support
	v.SetEnvPrefix("ORION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"auth.jwt_secret":   {"ORION_AUTH_JWT_SECRET", "JWT_SECRET"},
		"llm.api_key":       {"ORION_LLM_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY"},
		"search.api_key":    {"ORION_SEARCH_API_KEY", "TAVILY_API_KEY"},
		"database.url":      {"ORION_DATABASE_URL", "DATABASE_URL", "MONGODB_URI"},
		"llm.system_prompt": {"ORION_LLM_SYSTEM_PROMPT", "SYSTEM_PROMPT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}

	return &config, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var err error

	if len(c.Auth.JWTSecret) < 16 {
		err = multierr.Append(err, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		err = multierr.Append(err, errors.New("auth.token_ttl must be positive"))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			err = multierr.Append(err, errors.New("database.path is required for sqlite"))
		}
	case "postgres", "mongo":
		if c.Database.URL == "" {
			err = multierr.Append(err, fmt.Errorf("database.url is required for %s", c.Database.Driver))
		}
	case "memory":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.LLM.Provider {
	case "langchain", "openai":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown llm.provider %q", c.LLM.Provider))
	}
	if c.LLM.MaxTokens <= 0 {
		err = multierr.Append(err, errors.New("llm.max_tokens must be positive"))
	}

	if c.Server.RateLimit <= 0 {
		err = multierr.Append(err, errors.New("server.rate_limit must be positive"))
	}
	if c.Upload.MaxBytes <= 0 || c.Upload.MaxChars <= 0 {
		err = multierr.Append(err, errors.New("upload limits must be positive"))
	}

	return err
}
