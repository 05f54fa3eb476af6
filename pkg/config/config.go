package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

const (
	DefaultHost              = "localhost"
	DefaultPort              = "3000"
	DefaultProviderURL       = "https://api.duckduckgo.com/"
	DefaultTimeout           = 10 * time.Second
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 5
	DefaultBreakerFailures   = 5
	DefaultBreakerTimeout    = 30 * time.Second
	DefaultClientURL         = "http://localhost:3000"
	historyFileName          = "history.json"
)

type Config struct {
	StorageDir  string         `toml:"storage_dir"`
	HistoryFile string         `toml:"history_file,omitempty"`
	Debug       bool           `toml:"debug"`
	Server      ServerConfig   `toml:"server"`
	Provider    ProviderConfig `toml:"provider"`
	Client      ClientConfig   `toml:"client"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type ProviderConfig struct {
	BaseURL            string   `toml:"base_url"`
	Timeout            Duration `toml:"timeout"`
	RequestsPerSecond  *float64 `toml:"requests_per_second,omitempty"`
	Burst              int      `toml:"burst"`
	BreakerMaxFailures uint32   `toml:"breaker_max_failures"`
	BreakerTimeout     Duration `toml:"breaker_timeout"`
}

// Rate returns the configured request rate. Zero disables rate limiting.
func (p ProviderConfig) Rate() float64 {
	if p.RequestsPerSecond == nil {
		return DefaultRequestsPerSecond
	}
	return *p.RequestsPerSecond
}

type ClientConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	c := &Config{StorageDir: storageDir}
	c.applyDefaults()
	return c, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		config.StorageDir = storageDir
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = DefaultProviderURL
	}
	if c.Provider.Timeout.Duration == 0 {
		c.Provider.Timeout = Duration{DefaultTimeout}
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = DefaultBurst
	}
	if c.Provider.BreakerMaxFailures == 0 {
		c.Provider.BreakerMaxFailures = DefaultBreakerFailures
	}
	if c.Provider.BreakerTimeout.Duration == 0 {
		c.Provider.BreakerTimeout = Duration{DefaultBreakerTimeout}
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = DefaultClientURL
	}
	if c.Client.Timeout.Duration == 0 {
		c.Client.Timeout = Duration{DefaultTimeout}
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Provider.Timeout.Duration < 0 || c.Client.Timeout.Duration < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Provider.Rate() < 0 {
		return fmt.Errorf("provider.requests_per_second must not be negative")
	}
	if c.Provider.Burst < 0 {
		return fmt.Errorf("provider.burst must not be negative")
	}
	return nil
}

// HistoryPath returns the history file location, defaulting to a file in
// the storage directory.
func (c *Config) HistoryPath() string {
	if c.HistoryFile != "" {
		return c.HistoryFile
	}
	return filepath.Join(c.StorageDir, historyFileName)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		storageDir, err = GetDefaultStorageDir()
		if err != nil {
			return "", fmt.Errorf("getting default storage directory: %w", err)
		}
	}

	return strings.ReplaceAll(configTemplate, "/home/user/.local/share/quack", storageDir), nil
}

// GetDefaultStorageDir returns the default storage directory for the history file
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	quackDir := filepath.Join(dataDir, "quack")

	if err := os.MkdirAll(quackDir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", quackDir, err)
	}

	return quackDir, nil
}

// GetConfigDir returns the configuration directory for quack
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	quackConfigDir := filepath.Join(configDir, "quack")

	if err := os.MkdirAll(quackConfigDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", quackConfigDir, err)
	}

	return quackConfigDir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
