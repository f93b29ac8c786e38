package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig                `yaml:"app"`
	LLM      LLMConfig                `yaml:"llm"`
	RAG      RAGConfig                `yaml:"rag"`
	Agent    AgentConfig              `yaml:"agent"`
	DocGen   DocGenConfig             `yaml:"docgen"`
	Ingest   IngestConfig             `yaml:"ingest"`
	Store    StoreConfig              `yaml:"store"`
	HTTP     HTTPConfig               `yaml:"http"`
	Gateways map[string]GatewayConfig `yaml:"gateways"`
	Policy   PolicyConfig             `yaml:"policy"`
	Tools    ToolsConfig              `yaml:"tools"`
	Chat     ChatConfig               `yaml:"chat"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
	LogLevel  string `yaml:"log_level"`
}

// LLMConfig holds the primary provider and an optional fallback used when the
// primary transport fails.
type LLMConfig struct {
	Primary  ProviderConfig  `yaml:"primary"`
	Fallback *ProviderConfig `yaml:"fallback,omitempty"`
}

type ProviderConfig struct {
	Provider    string  `yaml:"provider"` // ollama, openai, openrouter
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type RAGConfig struct {
	ChromaURL      string         `yaml:"chroma_url"`
	Collection     string         `yaml:"collection"`
	TopK           int            `yaml:"top_k"`
	Embedder       ProviderConfig `yaml:"embedder"`
	SearchOnAnswer bool           `yaml:"search_on_answer"`
}

type AgentConfig struct {
	LogPath          string        `yaml:"log_path"`
	LogMaxSize       int64         `yaml:"log_max_size"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	KeepAlive        time.Duration `yaml:"keep_alive"`
	PreviewLimit     int           `yaml:"preview_limit"`
	PromptsDir       string        `yaml:"prompts_dir"`
	RecentLogs       int           `yaml:"recent_logs"`
}

type DocGenConfig struct {
	OutputDir     string        `yaml:"output_dir"`
	DownloadBase  string        `yaml:"download_base"`
	RemoteURL     string        `yaml:"remote_url,omitempty"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
}

type IngestConfig struct {
	CorpusDir     string        `yaml:"corpus_dir"`
	Include       []string      `yaml:"include"` // doublestar patterns relative to corpus_dir
	MaxFiles      int           `yaml:"max_files"`
	MaxRetries    int           `yaml:"max_retries"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ChunkSize     int           `yaml:"chunk_size"`
	ChunkOverlap  int           `yaml:"chunk_overlap"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

type PolicyConfig struct {
	DenyTools         []string            `yaml:"deny_tools"`
	DenyArguments     []string            `yaml:"deny_arguments"`
	DenyToolArguments map[string][]string `yaml:"deny_tool_arguments"`
	AllowSecretReads  bool                `yaml:"allow_secret_reads"`
}

type ToolsConfig struct {
	WebSearch bool `yaml:"web_search"`
	FetchURL  bool `yaml:"fetch_url"`
}

type ChatConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	HistoryLimit int    `yaml:"history_limit"`
}

// ErrNoProvider is returned by Validate when no completion model is set.
var ErrNoProvider = errors.New("config: llm.primary.provider and llm.primary.model are required")

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:      "lexigpt",
			Workspace: ".",
			LogLevel:  "info",
		},
		LLM: LLMConfig{
			Primary: ProviderConfig{
				Provider:    "ollama",
				Model:       "llama3",
				BaseURL:     "http://localhost:11434",
				Temperature: 0.15,
				MaxTokens:   768,
			},
		},
		RAG: RAGConfig{
			ChromaURL:  "http://localhost:8000",
			Collection: "law_docs",
			TopK:       3,
			Embedder: ProviderConfig{
				Provider: "ollama",
				Model:    "nomic-embed-text",
				BaseURL:  "http://localhost:11434",
			},
		},
		Agent: AgentConfig{
			LogPath:          "data/agent_logs.jsonl",
			SubscriberBuffer: 256,
			KeepAlive:        15 * time.Second,
			PreviewLimit:     400,
			PromptsDir:       "prompts",
			RecentLogs:       200,
		},
		DocGen: DocGenConfig{
			OutputDir:     "generated",
			DownloadBase:  "/api/docgen/download",
			RemoteTimeout: 60 * time.Second,
		},
		Ingest: IngestConfig{
			CorpusDir:     "data/pdfs",
			MaxRetries:    3,
			BackoffFactor: 1.5,
			PollInterval:  10 * time.Second,
			ChunkSize:     1000,
			ChunkOverlap:  150,
		},
		Store: StoreConfig{Path: "data/lexigpt.db"},
		HTTP:  HTTPConfig{Addr: ":5000"},
		Chat: ChatConfig{
			SystemPrompt: "You are LexiGPT, an Indian legal assistant. Provide precise, well-structured, and citation-backed answers.",
			HistoryLimit: 10,
		},
	}
}

// Load reads the YAML file at path over the defaults, expanding ${VAR}
// references, then applies LEXI_* environment overrides. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	loadFromEnv(cfg)
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("LEXI_LLM_PROVIDER"); v != "" {
		cfg.LLM.Primary.Provider = v
	}
	if v := os.Getenv("LEXI_LLM_MODEL"); v != "" {
		cfg.LLM.Primary.Model = v
	}
	if v := os.Getenv("LEXI_LLM_BASE_URL"); v != "" {
		cfg.LLM.Primary.BaseURL = v
	}
	if v := os.Getenv("LEXI_LLM_API_KEY"); v != "" {
		cfg.LLM.Primary.APIKey = v
	}
	// Variable names used by existing Ollama deployments.
	if v := os.Getenv("OLLAMA_MODEL"); v != "" && cfg.LLM.Primary.Provider == "ollama" {
		cfg.LLM.Primary.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && cfg.LLM.Primary.Provider == "ollama" {
		cfg.LLM.Primary.BaseURL = v
	}
	if v := os.Getenv("LEXI_CHROMA_URL"); v != "" {
		cfg.RAG.ChromaURL = v
	}
	if v := os.Getenv("LEXI_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LEXI_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("LEXI_TELEGRAM_TOKEN"); v != "" {
		if cfg.Gateways == nil {
			cfg.Gateways = map[string]GatewayConfig{}
		}
		cfg.Gateways["telegram"] = GatewayConfig{Token: v, Enabled: true}
	}
	if v := os.Getenv("AGENT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENT_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.BackoffFactor = f
		}
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.Primary.Provider) == "" || strings.TrimSpace(c.LLM.Primary.Model) == "" {
		return ErrNoProvider
	}
	if c.Ingest.MaxRetries < 1 {
		return fmt.Errorf("config: ingest.max_retries must be at least 1, got %d", c.Ingest.MaxRetries)
	}
	if c.Ingest.BackoffFactor < 1 {
		return fmt.Errorf("config: ingest.backoff_factor must be at least 1, got %v", c.Ingest.BackoffFactor)
	}
	return nil
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		return tg, true
	}
	return GatewayConfig{}, false
}
