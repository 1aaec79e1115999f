// Package config loads application configuration from a TOML file with
// environment variable overrides layered on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"relay/internal/mcp"
)

const (
	defaultProviderName       = "openrouter"
	defaultModel              = "openai/gpt-4o-mini"
	defaultTemperature        = 0.7
	defaultMaxIterations      = 15
	defaultCacheCapacity      = 256
	defaultCacheTTL           = "5m"
	defaultTUITheme           = "dark"
	defaultConfigRelativePath = ".config/relay/config.toml"

	envProvider    = "RELAY_PROVIDER"
	envModel       = "RELAY_MODEL"
	envTemperature = "RELAY_TEMPERATURE"
	envAPIKey      = "OPENAI_API_KEY"
	envAPIBase     = "OPENAI_API_BASE"
)

// ErrInvalidConfig indicates malformed configuration input.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the application configuration root.
type Config struct {
	Provider ProviderConfig            `toml:"provider"`
	Agent    AgentConfig               `toml:"agent"`
	Cache    CacheConfig               `toml:"cache"`
	TUI      TUIConfig                 `toml:"tui"`
	MCP      map[string]mcp.Connection `toml:"mcp"`
}

// ProviderConfig configures the model endpoint. Name selects a known
// base URL; BaseURL overrides it outright.
type ProviderConfig struct {
	Name        string  `toml:"name"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Temperature float64 `toml:"temperature"`
}

// AgentConfig configures the turn loop.
type AgentConfig struct {
	SystemPrompt  string `toml:"system_prompt"`
	MaxIterations int    `toml:"max_iterations"`
}

// CacheConfig configures the tool catalog cache.
type CacheConfig struct {
	Capacity int    `toml:"capacity"`
	TTL      string `toml:"ttl"`
}

// TUIConfig configures terminal UI defaults.
type TUIConfig struct {
	Theme string `toml:"theme"`
}

// LoadOptions controls config loading behavior.
type LoadOptions struct {
	Path string
}

// Default returns application defaults.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Name:        defaultProviderName,
			Model:       defaultModel,
			Temperature: defaultTemperature,
		},
		Agent: AgentConfig{
			MaxIterations: defaultMaxIterations,
		},
		Cache: CacheConfig{
			Capacity: defaultCacheCapacity,
			TTL:      defaultCacheTTL,
		},
		TUI: TUIConfig{
			Theme: defaultTUITheme,
		},
	}
}

// Load reads the config file then applies environment variable
// overrides. A missing file is not an error; defaults apply.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = defaultConfigPath()
	}

	if err := mergeConfigFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CacheTTL parses the configured catalog TTL.
func (c Config) CacheTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(strings.TrimSpace(c.Cache.TTL))
	if err != nil {
		return 0, fmt.Errorf("%w: parse cache ttl: %v", ErrInvalidConfig, err)
	}
	return ttl, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if value, ok := os.LookupEnv(envProvider); ok && strings.TrimSpace(value) != "" {
		cfg.Provider.Name = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envModel); ok && strings.TrimSpace(value) != "" {
		cfg.Provider.Model = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envAPIKey); ok {
		cfg.Provider.APIKey = value
	}
	if value, ok := os.LookupEnv(envAPIBase); ok && strings.TrimSpace(value) != "" {
		cfg.Provider.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envTemperature); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, envTemperature, err)
		}
		cfg.Provider.Temperature = parsed
	}
	return nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		return fmt.Errorf("%w: provider.model is required", ErrInvalidConfig)
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		return fmt.Errorf("%w: provider.temperature must be in [0, 2]", ErrInvalidConfig)
	}
	if cfg.Agent.MaxIterations < 1 {
		return fmt.Errorf("%w: agent.max_iterations must be >= 1", ErrInvalidConfig)
	}
	if cfg.Cache.Capacity < 1 {
		return fmt.Errorf("%w: cache.capacity must be >= 1", ErrInvalidConfig)
	}
	if _, err := cfg.CacheTTL(); err != nil {
		return err
	}
	for name, conn := range cfg.MCP {
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("%w: mcp connection %q: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigRelativePath)
}
