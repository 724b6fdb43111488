// Package config loads the service configuration: a YAML file validated
// against an embedded JSON Schema, with environment-variable overrides on
// top. A missing file is not an error — the defaults describe a working
// local setup and every field can be supplied through the environment.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	_ "embed"

	"github.com/kioku-ai/kioku/common/environment"
)

//go:embed schema.json
var schemaJSON []byte

// ProviderOpenAI and ProviderAnthropic are the accepted chat.provider values.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
}

// DatabaseConfig locates the relational store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VectorConfig tunes the vector memory. An empty Dir keeps the index
// in memory only.
type VectorConfig struct {
	Dir     string `yaml:"dir"`
	Window  int    `yaml:"window"`
	Overlap int    `yaml:"overlap"`
	Batch   int    `yaml:"batch"`
}

// EmbeddingConfig points at the OpenAI-compatible embedding endpoint.
// APIKeyEnv names the environment variable holding the key; the key itself
// never appears in the file.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	CacheSize int    `yaml:"cache_size"`
}

// ChatConfig selects and points at the generative-model provider.
type ChatConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Default returns the configuration for a local setup.
func Default() Config {
	return Config{
		ListenAddr: ":8640",
		Database:   DatabaseConfig{Path: "kioku.db"},
		Vector:     VectorConfig{Dir: "kioku-vectors"},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "nomic-embed-text",
			APIKeyEnv: "OPENAI_API_KEY",
			CacheSize: 4096,
		},
		Chat: ChatConfig{
			Provider:  ProviderOpenAI,
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// Load reads the YAML file at path, validates it against the embedded schema,
// merges it over the defaults, and applies environment overrides. An empty
// path or a missing file skips straight to defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults + environment only.
		case err != nil:
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		default:
			if err := validateSchema(data); err != nil {
				return Config{}, fmt.Errorf("config: %q: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	applyEnvironment(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validateSchema checks the raw YAML document against the embedded schema
// before the struct decode, so unknown keys and wrong types fail loudly
// instead of silently zeroing fields.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees the value types it
	// expects (float64 numbers, string-keyed maps).
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode for validation: %w", err)
	}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("decode for validation: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	sch, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// applyEnvironment overlays KIOKU_* variables on the loaded values.
func applyEnvironment(cfg *Config) {
	cfg.ListenAddr = environment.StringOr("KIOKU_LISTEN_ADDR", cfg.ListenAddr)
	cfg.Database.Path = environment.StringOr("KIOKU_DB_PATH", cfg.Database.Path)
	cfg.Vector.Dir = environment.StringOr("KIOKU_VECTOR_DIR", cfg.Vector.Dir)
	cfg.Embedding.BaseURL = environment.StringOr("KIOKU_EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = environment.StringOr("KIOKU_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKeyEnv = environment.StringOr("KIOKU_EMBEDDING_API_KEY_ENV", cfg.Embedding.APIKeyEnv)
	cfg.Embedding.CacheSize = environment.IntOr("KIOKU_EMBEDDING_CACHE_SIZE", cfg.Embedding.CacheSize)
	cfg.Chat.Provider = environment.StringOr("KIOKU_CHAT_PROVIDER", cfg.Chat.Provider)
	cfg.Chat.BaseURL = environment.StringOr("KIOKU_CHAT_BASE_URL", cfg.Chat.BaseURL)
	cfg.Chat.Model = environment.StringOr("KIOKU_CHAT_MODEL", cfg.Chat.Model)
	cfg.Chat.APIKeyEnv = environment.StringOr("KIOKU_CHAT_API_KEY_ENV", cfg.Chat.APIKeyEnv)
}

// validate checks the cross-field invariants the schema cannot express.
func (c Config) validate() error {
	if c.Chat.Provider != ProviderOpenAI && c.Chat.Provider != ProviderAnthropic {
		return fmt.Errorf("config: unknown chat provider %q", c.Chat.Provider)
	}
	if c.Vector.Window > 0 && c.Vector.Overlap >= c.Vector.Window {
		return fmt.Errorf("config: vector overlap %d must be smaller than window %d",
			c.Vector.Overlap, c.Vector.Window)
	}
	if c.Database.Path == "" {
		return errors.New("config: database path is required")
	}
	return nil
}

// EmbeddingAPIKey resolves the embedding API key from the environment.
func (c Config) EmbeddingAPIKey() string {
	v, _ := environment.String(c.Embedding.APIKeyEnv)
	return v
}

// ChatAPIKey resolves the chat API key from the environment.
func (c Config) ChatAPIKey() string {
	v, _ := environment.String(c.Chat.APIKeyEnv)
	return v
}
