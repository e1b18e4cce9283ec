package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// Completion provider
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"`
	APIBaseURL   string  `mapstructure:"api_base_url" yaml:"api_base_url"`
	DefaultModel string  `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration for the provider client
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Object storage (S3-compatible / Cloudflare R2)
	StorageEndpoint  string `mapstructure:"storage_endpoint" yaml:"storage_endpoint"`
	StorageAccessKey string `mapstructure:"storage_access_key" yaml:"storage_access_key"`
	StorageSecretKey string `mapstructure:"storage_secret_key" yaml:"storage_secret_key"`
	StorageBucket    string `mapstructure:"storage_bucket" yaml:"storage_bucket"`
	StorageUseSSL    bool   `mapstructure:"storage_use_ssl" yaml:"storage_use_ssl"`
	PresignExpirySec int    `mapstructure:"presign_expiry_sec" yaml:"presign_expiry_sec"`

	// Metadata database
	MetadataPath string `mapstructure:"metadata_path" yaml:"metadata_path"`

	// Analysis tuning
	TopValues       int `mapstructure:"top_values" yaml:"top_values"`
	TopCorrelations int `mapstructure:"top_correlations" yaml:"top_correlations"`
	SampleRows      int `mapstructure:"sample_rows" yaml:"sample_rows"`

	// Logging
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is
// empty, it writes to ~/.dataloom/config.yaml, creating the directory if
// necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".dataloom")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DATALOOM")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("api_base_url", "")
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("storage_use_ssl", true)
	v.SetDefault("presign_expiry_sec", 3600)
	v.SetDefault("top_values", 10)
	v.SetDefault("top_correlations", 5)
	v.SetDefault("sample_rows", 5)
	v.SetDefault("debug", false)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".dataloom")
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve metadata_path default: ~/.dataloom/files.db
	if c.MetadataPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.MetadataPath = filepath.Join(home, ".dataloom", "files.db")
	}
	return &c, nil
}
