// Package config loads and validates dashboard configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	DB      DBConfig      `mapstructure:"db"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AgentConfig points at the generation agent and caps its calls. Generation
// streams for minutes; refinement is a short single-shot call.
type AgentConfig struct {
	BaseURL                string `mapstructure:"base_url"`
	GenerateTimeoutSeconds int    `mapstructure:"generate_timeout_seconds"`
	RefineTimeoutSeconds   int    `mapstructure:"refine_timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory docs store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// AuthConfig names the header carrying the owner identity. Session and OAuth
// handling live in the fronting proxy; this service only reads the result.
type AuthConfig struct {
	IdentityHeader string `mapstructure:"identity_header"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("agent.base_url", "http://localhost:8000")
	v.SetDefault("agent.generate_timeout_seconds", 300)
	v.SetDefault("agent.refine_timeout_seconds", 60)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("auth.identity_header", "X-Owner-Identity")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Agent.BaseURL == "" {
		return fmt.Errorf("agent.base_url is required")
	}
	if c.Agent.GenerateTimeoutSeconds <= 0 {
		return fmt.Errorf("agent.generate_timeout_seconds must be > 0")
	}
	if c.Agent.RefineTimeoutSeconds <= 0 {
		return fmt.Errorf("agent.refine_timeout_seconds must be > 0")
	}
	if c.Auth.IdentityHeader == "" {
		return fmt.Errorf("auth.identity_header is required")
	}
	return nil
}

// GenerateTimeout returns the cap for one generation relay lifetime.
func (c Config) GenerateTimeout() time.Duration {
	return time.Duration(c.Agent.GenerateTimeoutSeconds) * time.Second
}

// RefineTimeout returns the cap for one refinement call.
func (c Config) RefineTimeout() time.Duration {
	return time.Duration(c.Agent.RefineTimeoutSeconds) * time.Second
}
