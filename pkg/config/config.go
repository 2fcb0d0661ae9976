package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Tier names accepted in TiersConfig.Order
const (
	TierEmbed   = "embed"
	TierPrivate = "private"
)

// Config holds all configuration options for the resolver service
type Config struct {
	// Instagram credentials and transport
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Redis connection backing the cache
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// Cache TTL policy
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Tier order and per-tier timeouts
	Tiers TiersConfig `yaml:"tiers" json:"tiers"`

	// HTTP server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	Username              string        `yaml:"username" json:"username"`
	Password              string        `yaml:"password" json:"password"`
	Proxies               ProxyConfig   `yaml:"proxies" json:"proxies"`
	SettingsCacheFilePath string        `yaml:"settings_cache_file_path" json:"settings_cache_file_path"`
	UserAgent             string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout        time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// ProxyConfig mirrors the requests-style proxies mapping
type ProxyConfig struct {
	HTTP  string `yaml:"http" json:"http"`
	HTTPS string `yaml:"https" json:"https"`
}

// Enabled reports whether any proxy is configured
func (p ProxyConfig) Enabled() bool {
	return p.HTTP != "" || p.HTTPS != ""
}

// RedisConfig holds the cache backend connection settings
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	DB        int    `yaml:"db" json:"db"`
	Password  string `yaml:"password" json:"password"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig holds per-resource TTLs
type CacheConfig struct {
	PostTTL  time.Duration `yaml:"post_ttl" json:"post_ttl"`
	UserTTL  time.Duration `yaml:"user_ttl" json:"user_ttl"`
	StoryTTL time.Duration `yaml:"story_ttl" json:"story_ttl"`
}

// TiersConfig holds the fallback order and timeouts
type TiersConfig struct {
	Order          []string      `yaml:"order" json:"order"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout" json:"embed_timeout"`
	GraphQLTimeout time.Duration `yaml:"graphql_timeout" json:"graphql_timeout"`
	PrivateTimeout time.Duration `yaml:"private_timeout" json:"private_timeout"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port              int           `yaml:"port" json:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry configuration for upstream requests
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // console or json
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			SettingsCacheFilePath: "./settings.json",
			UserAgent:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.60 Safari/537.36",
			RequestTimeout:        15 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:   true,
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			KeyPrefix: "instagram:",
		},
		Cache: CacheConfig{
			PostTTL:  24 * time.Hour,
			UserTTL:  7 * 24 * time.Hour,
			StoryTTL: 24 * time.Hour,
		},
		Tiers: TiersConfig{
			Order:          []string{TierEmbed, TierPrivate},
			EmbedTimeout:   30 * time.Second,
			GraphQLTimeout: 15 * time.Second,
			PrivateTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      90 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			Enabled:     true,
			MaxAttempts: 2,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Multiplier:  2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Instagram credentials
	if username := os.Getenv("IGRESOLVER_USERNAME"); username != "" {
		c.Instagram.Username = username
	}
	if password := os.Getenv("IGRESOLVER_PASSWORD"); password != "" {
		c.Instagram.Password = password
	}
	if proxy := os.Getenv("IGRESOLVER_HTTP_PROXY"); proxy != "" {
		c.Instagram.Proxies.HTTP = proxy
	}
	if proxy := os.Getenv("IGRESOLVER_HTTPS_PROXY"); proxy != "" {
		c.Instagram.Proxies.HTTPS = proxy
	}
	if path := os.Getenv("IGRESOLVER_SETTINGS_FILE"); path != "" {
		c.Instagram.SettingsCacheFilePath = path
	}

	// Redis
	if host := os.Getenv("IGRESOLVER_REDIS_HOST"); host != "" {
		c.Redis.Host = host
	}
	if port := os.Getenv("IGRESOLVER_REDIS_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid IGRESOLVER_REDIS_PORT %q: %w", port, err)
		}
		c.Redis.Port = val
	}
	if db := os.Getenv("IGRESOLVER_REDIS_DB"); db != "" {
		val, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid IGRESOLVER_REDIS_DB %q: %w", db, err)
		}
		c.Redis.DB = val
	}
	if enabled := os.Getenv("IGRESOLVER_REDIS_ENABLED"); enabled != "" {
		c.Redis.Enabled = strings.ToLower(enabled) == "true"
	}

	// Tier order, comma separated
	if order := os.Getenv("IGRESOLVER_TIERS"); order != "" {
		var tiers []string
		for _, name := range strings.Split(order, ",") {
			if name = strings.TrimSpace(name); name != "" {
				tiers = append(tiers, strings.ToLower(name))
			}
		}
		c.Tiers.Order = tiers
	}

	// Server
	if port := os.Getenv("IGRESOLVER_PORT"); port != "" {
		var val int
		fmt.Sscanf(port, "%d", &val)
		if val > 0 {
			c.Server.Port = val
		}
	}

	// Rate limiting
	if rpm := os.Getenv("IGRESOLVER_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	// Logging level
	if logLevel := os.Getenv("IGRESOLVER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("IGRESOLVER_LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	return nil
}

// LoadFromFile loads configuration from a YAML (or JSON) file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	// Check in order of precedence
	locations := []string{
		"config.json",
		"config.yaml",
		"config.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igresolver", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "igresolver", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Validate tiers
	if len(c.Tiers.Order) == 0 {
		errs = append(errs, errors.New("at least one tier is required"))
	}
	seen := make(map[string]bool)
	for _, name := range c.Tiers.Order {
		switch name {
		case TierEmbed, TierPrivate:
		default:
			errs = append(errs, fmt.Errorf("unknown tier %q", name))
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("tier %q listed twice", name))
		}
		seen[name] = true
	}
	if c.Tiers.EmbedTimeout < 0 || c.Tiers.GraphQLTimeout < 0 || c.Tiers.PrivateTimeout < 0 {
		errs = append(errs, errors.New("tier timeouts cannot be negative"))
	}

	// The private tier needs somewhere to keep its session
	if seen[TierPrivate] {
		if c.Instagram.Username == "" {
			errs = append(errs, errors.New("Instagram username is required for the private tier"))
		}
		if c.Instagram.SettingsCacheFilePath == "" {
			errs = append(errs, errors.New("settings cache file path is required for the private tier"))
		}
	}

	// Validate redis
	if c.Redis.Enabled {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("redis host is required"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, errors.New("redis port must be between 1 and 65535"))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, errors.New("redis db cannot be negative"))
		}
	}

	// Validate cache TTLs
	if c.Cache.PostTTL < 0 || c.Cache.UserTTL < 0 || c.Cache.StoryTTL < 0 {
		errs = append(errs, errors.New("cache TTLs cannot be negative"))
	}

	// Validate server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server port must be between 1 and 65535"))
	}

	// Validate rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	// Validate retry
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if username, ok := flags["username"].(string); ok && username != "" {
		c.Instagram.Username = username
	}
	if settings, ok := flags["settings-file"].(string); ok && settings != "" {
		c.Instagram.SettingsCacheFilePath = settings
	}
	if port, ok := flags["port"].(int); ok && port > 0 {
		c.Server.Port = port
	}
	if tiers, ok := flags["tiers"].([]string); ok && len(tiers) > 0 {
		c.Tiers.Order = tiers
	}
	if noCache, ok := flags["no-cache"].(bool); ok && noCache {
		c.Redis.Enabled = false
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igresolver.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
