package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTempConfig(t, `{}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.FastModel != "phi3.5" {
		t.Errorf("Ollama.FastModel = %q", cfg.Ollama.FastModel)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Cloud.DefaultModel != "anthropic/claude-opus-4" {
		t.Errorf("Cloud.DefaultModel = %q", cfg.Cloud.DefaultModel)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}

	d, err := cfg.GenerateTimeout()
	if err != nil || d != 2*time.Minute {
		t.Errorf("GenerateTimeout = %v, %v", d, err)
	}
	d, err = cfg.QueueTaskTimeout()
	if err != nil || d != 5*time.Minute {
		t.Errorf("QueueTaskTimeout = %v, %v", d, err)
	}
}

func TestFileValues(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTempConfig(t, `{
  "server.port": 5000,
  "ollama.base_url": "http://custom:11434",
  "ollama.fast_model": "custom-fast",
  "ollama.embed_model": "custom-embed",
  "storage.data_dir": "/tmp/helmsman-test",
  "cloud.default_model": "openai/gpt-4o",
  "timeout.generate": "90s"
}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://custom:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.FastModel != "custom-fast" {
		t.Errorf("Ollama.FastModel = %q", cfg.Ollama.FastModel)
	}
	if cfg.Storage.DataDir != "/tmp/helmsman-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Cloud.DefaultModel != "openai/gpt-4o" {
		t.Errorf("Cloud.DefaultModel = %q", cfg.Cloud.DefaultModel)
	}
	if d, _ := cfg.GenerateTimeout(); d != 90*time.Second {
		t.Errorf("GenerateTimeout = %v, want 90s", d)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTempConfig(t, `{"ollama.fast_model": "file-model"}`)

	t.Setenv("HELMSMAN_OLLAMA_FAST_MODEL", "env-model")
	t.Setenv("HELMSMAN_SERVER_PORT", "6001")
	t.Setenv("HELMSMAN_OPENROUTER_API_KEY", "env-secret")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ollama.FastModel != "env-model" {
		t.Errorf("FastModel = %q, want env-model", cfg.Ollama.FastModel)
	}
	if cfg.Server.Port != 6001 {
		t.Errorf("Server.Port = %d, want 6001", cfg.Server.Port)
	}
	if cfg.Cloud.OpenRouterAPIKey != "env-secret" {
		t.Errorf("OpenRouterAPIKey = %q, want env-secret", cfg.Cloud.OpenRouterAPIKey)
	}
}

func TestSecretNotReadFromFile(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTempConfig(t, `{"cloud.openrouter_api_key": "file-secret"}`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cloud.OpenRouterAPIKey != "" {
		t.Errorf("OpenRouterAPIKey = %q, secrets must not load from the config file", cfg.Cloud.OpenRouterAPIKey)
	}
}

func TestInvalidTimeoutRejected(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTempConfig(t, `{"timeout.generate": "soon"}`)

	_, err := loadWith(newFileBackend(path))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "timeout.generate") {
		t.Errorf("error = %q", err)
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "ollama.fast_model", "llama3.2"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "server.port", "8080"); err != nil {
		t.Fatalf("setKey int: %v", err)
	}

	// Re-open to prove the values were persisted.
	reloaded := newFileBackend(path)
	v, ok, err := reloaded.GetString("ollama.fast_model")
	if err != nil || !ok || v != "llama3.2" {
		t.Errorf("GetString = %q, %v, %v", v, ok, err)
	}
	i, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || i != 8080 {
		t.Errorf("GetInt = %d, %v, %v", i, ok, err)
	}
}

func TestSetKey_Invalid(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	if err := setKey(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := setKey(b, "server.port", "not-a-number"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "cloud.openrouter_api_key", "leak"); err == nil {
		t.Error("expected error when setting a secret via config file")
	}
}

func TestLoadOrCreateToken(t *testing.T) {
	dir := t.TempDir()

	token, err := LoadOrCreateToken(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}

	again, err := LoadOrCreateToken(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if again != token {
		t.Error("token changed between calls")
	}

	info, err := os.Stat(filepath.Join(dir, "token"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}
}
