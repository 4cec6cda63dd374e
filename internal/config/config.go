package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Cloud   CloudConfig
	Log     LogConfig
	Timeout TimeoutConfig
	Rerank  RerankConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	FastModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type CloudConfig struct {
	OpenRouterAPIKey string
	DefaultModel     string
}

type LogConfig struct {
	Level string
}

// TimeoutConfig carries deadlines as duration strings ("2m", "90s").
type TimeoutConfig struct {
	Generate  string
	QueueTask string
}

// RerankConfig controls LLM re-scoring of search results.
type RerankConfig struct {
	Enabled   bool
	Threshold float64
	Timeout   string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			FastModel:  "phi3.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Cloud: CloudConfig{
			DefaultModel: "anthropic/claude-opus-4",
		},
		Log: LogConfig{
			Level: "info",
		},
		Timeout: TimeoutConfig{
			Generate:  "2m",
			QueueTask: "5m",
		},
		Rerank: RerankConfig{
			Enabled:   false,
			Threshold: 0.3,
			Timeout:   "5s",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "helmsman-data"
		}
	}
	return filepath.Join(dir, "helmsman")
}

// Load reads configuration from the config file at
// $XDG_CONFIG_HOME/helmsman/config.json, then applies HELMSMAN_*
// environment variable overrides.
//
// The OpenRouter API key is optional: without it the cloud provider is
// simply not wired and routing is local-only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if _, err := cfg.GenerateTimeout(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.QueueTaskTimeout(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// UploadDir holds documents ingested from inline request content.
func (c Config) UploadDir() string {
	return filepath.Join(c.Storage.DataDir, "uploads")
}

func (c Config) GenerateTimeout() (time.Duration, error) {
	return parseTimeout("timeout.generate", c.Timeout.Generate)
}

func (c Config) QueueTaskTimeout() (time.Duration, error) {
	return parseTimeout("timeout.queue_task", c.Timeout.QueueTask)
}

func (c Config) RerankTimeout() (time.Duration, error) {
	return parseTimeout("rerank.timeout", c.Rerank.Timeout)
}

func parseTimeout(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration for %s must be positive, got %s", key, d)
	}
	return d, nil
}
