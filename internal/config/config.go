package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Model   ModelConfig   `koanf:"model"`
	Engine  EngineConfig  `koanf:"engine"`
	Storage StorageConfig `koanf:"storage"`
	Sinks   SinksConfig   `koanf:"sinks"`
	Intel   IntelConfig   `koanf:"intel"`
	Prompt  PromptConfig  `koanf:"prompt"`
}

// PromptConfig overrides the built-in persona and product knowledge.
// Empty fields fall back to the compiled-in defaults.
type PromptConfig struct {
	Persona       string `koanf:"persona"`
	KnowledgeBase string `koanf:"knowledge_base"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// RequestTimeout caps a whole request; it should exceed the model
	// timeout so the fallback path can still write a response.
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int `koanf:"rate_limit"`
}

// ModelConfig configures the upstream chat-completions endpoint.
type ModelConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Name    string `koanf:"name"`
	// Timeout bounds a single model call; on expiry the turn falls back
	// to the configured fallback reply.
	Timeout       time.Duration `koanf:"timeout"`
	MaxTokens     int           `koanf:"max_tokens"`
	FallbackReply string        `koanf:"fallback_reply"`
}

// EngineConfig bounds turn processing.
type EngineConfig struct {
	// MaxTurnWindow is the number of recent turns included in the prompt.
	MaxTurnWindow int `koanf:"max_turn_window"`
	// PromptTokenBudget bounds the assembled prompt; older turns are
	// dropped until the payload fits.
	PromptTokenBudget int `koanf:"prompt_token_budget"`
	// MaxAttachments and MaxAttachmentBytes bound inbound inputs.
	MaxAttachments     int   `koanf:"max_attachments"`
	MaxAttachmentBytes int64 `koanf:"max_attachment_bytes"`
	// IdleTimeout closes sessions with no activity.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// SinksConfig configures the external notification webhooks.
type SinksConfig struct {
	Lead       WebhookConfig `koanf:"lead"`
	Escalation WebhookConfig `koanf:"escalation"`
}

type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Timeout time.Duration     `koanf:"timeout"`
	Retries int               `koanf:"retries"`
	Headers map[string]string `koanf:"headers"`
}

// IntelConfig configures the optional company intelligence lookup.
type IntelConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}

	// Try to load from the config file first
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("SALESCHAT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SALESCHAT_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	cfg.Model.APIKey = substituteEnvVars(cfg.Model.APIKey)
	cfg.Intel.APIKey = substituteEnvVars(cfg.Intel.APIKey)

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                 8080,
		"server.request_timeout":      "60s",
		"server.rate_limit":           60,
		"model.base_url":              "https://api.openai.com/v1",
		"model.name":                  "gpt-4o",
		"model.timeout":               "30s",
		"model.max_tokens":            1024,
		"engine.max_turn_window":      10,
		"engine.prompt_token_budget":  6000,
		"engine.max_attachments":      5,
		"engine.max_attachment_bytes": 10 << 20,
		"engine.idle_timeout":         "30m",
		"storage.type":                "memory",
		"sinks.lead.timeout":          "10s",
		"sinks.lead.retries":          2,
		"sinks.escalation.timeout":    "10s",
		"sinks.escalation.retries":    2,
		"intel.timeout":               "3s",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
