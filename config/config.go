// Package config loads the server configuration with viper. Values come
// from, in order of precedence, environment variables, an optional config
// file, an optional .env file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallnest/researchcanvas/models"
	"github.com/spf13/viper"
)

// Checkpoint backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all configuration of the canvas server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Model      ModelConfig      `mapstructure:"model"`
	Search     SearchConfig     `mapstructure:"search"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Campaign   CampaignConfig   `mapstructure:"campaign"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ModelConfig selects the default provider and carries provider credentials.
type ModelConfig struct {
	// Default is the MODEL environment default used when neither the
	// conversation nor the request selects a provider.
	Default         string `mapstructure:"default"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string `mapstructure:"openai_base_url"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GoogleAPIKey    string `mapstructure:"google_api_key"`
}

// Credentials returns the provider credentials for models.NewFactory.
func (m ModelConfig) Credentials() models.Credentials {
	return models.Credentials{
		OpenAIKey:     m.OpenAIAPIKey,
		OpenAIBaseURL: m.OpenAIBaseURL,
		AnthropicKey:  m.AnthropicAPIKey,
		GoogleKey:     m.GoogleAPIKey,
	}
}

// SearchConfig configures web search. Search is disabled without an API key.
type SearchConfig struct {
	BraveAPIKey string `mapstructure:"brave_api_key"`
	Count       int    `mapstructure:"count"`
}

// FetchConfig configures resource downloads.
type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CampaignConfig points at the external campaign service. An empty APIURL
// disables replication.
type CampaignConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CheckpointConfig selects where conversation checkpoints are stored.
type CheckpointConfig struct {
	Backend  string         `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type SQLiteConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// AgentConfig tunes the conversation agent.
type AgentConfig struct {
	MaxToolRounds int `mapstructure:"max_tool_rounds"`
}

// LogConfig sets the log level: debug, info, warn, error or none.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings maps configuration keys to the environment variables that
// override them.
var envBindings = map[string]string{
	"model.default":             "MODEL",
	"model.openai_api_key":      "OPENAI_API_KEY",
	"model.openai_base_url":     "OPENAI_BASE_URL",
	"model.anthropic_api_key":   "ANTHROPIC_API_KEY",
	"model.google_api_key":      "GOOGLE_API_KEY",
	"server.port":               "PORT",
	"server.host":               "HOST",
	"server.cors_origins":       "CORS_ORIGINS",
	"search.brave_api_key":      "BRAVE_API_KEY",
	"fetch.timeout":             "FETCH_TIMEOUT",
	"campaign.api_url":          "CAMPAIGN_API_URL",
	"checkpoint.backend":        "CHECKPOINT_BACKEND",
	"checkpoint.redis.addr":     "REDIS_ADDR",
	"checkpoint.redis.password": "REDIS_PASSWORD",
	"checkpoint.redis.db":       "REDIS_DB",
	"checkpoint.postgres.dsn":   "POSTGRES_DSN",
	"checkpoint.sqlite.path":    "SQLITE_PATH",
	"agent.max_tool_rounds":     "MAX_TOOL_ROUNDS",
	"log.level":                 "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("model.default", "")
	v.SetDefault("search.count", 5)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("campaign.api_url", "http://localhost:5000")
	v.SetDefault("campaign.timeout", 10*time.Second)
	v.SetDefault("checkpoint.backend", BackendMemory)
	v.SetDefault("checkpoint.redis.prefix", "canvas:")
	v.SetDefault("checkpoint.postgres.table", "checkpoints")
	v.SetDefault("checkpoint.sqlite.path", "canvas.db")
	v.SetDefault("checkpoint.sqlite.table", "checkpoints")
	v.SetDefault("agent.max_tool_rounds", 10)
	v.SetDefault("log.level", "info")
}

// LoadConfig reads the configuration. path names a config file; when it is
// empty a file named config.{yaml,json,toml} is looked up in the working
// directory and ./config, and a missing file is not an error. A .env file in
// the working directory is read as well.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadDotEnv(v, ".env"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv applies the variables of a dotenv file as defaults, so real
// environment variables and the config file still take precedence.
func loadDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for key, env := range envBindings {
		name := strings.ToLower(env)
		if dv.IsSet(name) {
			v.SetDefault(key, dv.Get(name))
		}
	}
	return nil
}

// splitList accepts both list values and a single comma-separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Model.Default != "" {
		if _, err := models.Parse(c.Model.Default); err != nil {
			return fmt.Errorf("model.default: %w", err)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	return c.Checkpoint.Validate()
}

// Validate checks that the selected backend is known and configured.
func (c CheckpointConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("checkpoint.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("checkpoint.postgres.dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("checkpoint.sqlite.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint backend %q (expected memory, redis, postgres or sqlite)", c.Backend)
	}
	return nil
}
