package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.PreviewLimit != 400 {
		t.Errorf("preview limit = %d", cfg.Agent.PreviewLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_LEXI_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
llm:
  primary:
    provider: openai
    model: gpt-4o-mini
    api_key: ${TEST_LEXI_KEY}
agent:
  keep_alive: 3s
policy:
  deny_tools: [fetch_url]
gateways:
  telegram:
    token: abc
    enabled: true
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Primary.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.LLM.Primary.APIKey)
	}
	if cfg.Agent.KeepAlive != 3*time.Second {
		t.Errorf("keep alive = %v", cfg.Agent.KeepAlive)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Ingest.BackoffFactor != 1.5 {
		t.Errorf("backoff factor = %v", cfg.Ingest.BackoffFactor)
	}
	if len(cfg.Policy.DenyTools) != 1 || cfg.Policy.DenyTools[0] != "fetch_url" {
		t.Errorf("deny tools = %v", cfg.Policy.DenyTools)
	}
	if _, ok := cfg.GetTelegramConfig(); !ok {
		t.Error("telegram should be enabled")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEXI_LLM_MODEL", "mistral")
	t.Setenv("AGENT_MAX_RETRIES", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Primary.Model != "mistral" {
		t.Errorf("model = %q", cfg.LLM.Primary.Model)
	}
	if cfg.Ingest.MaxRetries != 5 {
		t.Errorf("max retries = %d", cfg.Ingest.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LLM.Primary.Model = ""
	if err := cfg.Validate(); err != ErrNoProvider {
		t.Errorf("err = %v", err)
	}

	cfg = Default()
	cfg.Ingest.BackoffFactor = 0.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected backoff factor error")
	}
}
