package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pasichat service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Upload    UploadConfig    `yaml:"upload"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AuthConfig holds API authentication settings. An empty key list
// disables authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ChatConfig holds chat completion settings for query understanding.
type ChatConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// RetrievalConfig holds similarity query policy settings.
type RetrievalConfig struct {
	Threshold    float64 `yaml:"threshold"`     // minimum cosine similarity, exclusive
	QueryLimit   int     `yaml:"query_limit"`   // per-query top-K
	ResultLimit  int     `yaml:"result_limit"`  // merged cross-query cap
	MaxAttempts  int     `yaml:"max_attempts"`  // rate-limit retries per dispatch
	BudgetSec    int     `yaml:"budget_sec"`    // wall-clock budget per dispatch
	ExpansionOff bool    `yaml:"expansion_off"` // disable synonym expansion
}

// ChunkingConfig holds text segmentation settings.
type ChunkingConfig struct {
	MaxSize          int `yaml:"max_size"`
	OverlapSentences int `yaml:"overlap_sentences"`
}

// UploadConfig holds document upload bounds.
type UploadConfig struct {
	MaxSizeMB int `yaml:"max_size_mb"`
}

// ExpansionConfig holds the synonym table location.
type ExpansionConfig struct {
	TablePath string `yaml:"table_path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 35
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-ada-002"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-3.5-turbo"
	}
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = c.Embedding.APIKey
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = c.Embedding.BaseURL
	}
	if c.Retrieval.Threshold <= 0 {
		c.Retrieval.Threshold = 0.3
	}
	if c.Retrieval.QueryLimit <= 0 {
		c.Retrieval.QueryLimit = 4
	}
	if c.Retrieval.ResultLimit <= 0 {
		c.Retrieval.ResultLimit = 8
	}
	if c.Retrieval.MaxAttempts <= 0 {
		c.Retrieval.MaxAttempts = 3
	}
	if c.Retrieval.BudgetSec <= 0 {
		c.Retrieval.BudgetSec = 30
	}
	if c.Chunking.MaxSize <= 0 {
		c.Chunking.MaxSize = 800
	}
	if c.Chunking.OverlapSentences <= 0 {
		c.Chunking.OverlapSentences = 2
	}
	if c.Upload.MaxSizeMB <= 0 {
		c.Upload.MaxSizeMB = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in (0, 65535], got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs must not be empty")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if c.Retrieval.Threshold >= 1 {
		return fmt.Errorf("retrieval.threshold must be below 1, got %f", c.Retrieval.Threshold)
	}
	if c.Chunking.MaxSize < 100 {
		return fmt.Errorf("chunking.max_size must be at least 100, got %d", c.Chunking.MaxSize)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
