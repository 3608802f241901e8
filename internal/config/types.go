// Package config provides configuration loading for patternd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the patternd daemon.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	Store        StoreConfig        `koanf:"store"`
	VectorStore  VectorStoreConfig  `koanf:"vectorstore"`
	Embeddings   EmbeddingsConfig   `koanf:"embeddings"`
	LLM          LLMConfig          `koanf:"llm"`
	Engine       EngineConfig       `koanf:"engine"`
	Conversation ConversationConfig `koanf:"conversation"`
	Safety       SafetyConfig       `koanf:"safety"`
	NATS         NATSConfig         `koanf:"nats"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `koanf:"level"`  // debug, info, warn, error
	Format      string `koanf:"format"` // json, console
	Development bool   `koanf:"development"`
}

// StoreConfig holds SQLite settings.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // chromem, qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig configures the external Qdrant backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     string `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig configures embedding generation.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed, openai
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// LLMConfig configures the pattern extraction model.
type LLMConfig struct {
	Provider  string `koanf:"provider"` // disabled, anthropic, openai
	Model     string `koanf:"model"`
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	MaxTokens int    `koanf:"max_tokens"`
	Timeout   int    `koanf:"timeout"` // seconds
}

// EngineConfig holds pattern engine thresholds and gates.
type EngineConfig struct {
	DedupThreshold    float64       `koanf:"dedup_threshold"`
	AutoThreshold     float64       `koanf:"auto_threshold"`
	SuggestThreshold  float64       `koanf:"suggest_threshold"`
	MatchFloor        float64       `koanf:"match_floor"`
	AutoMinExecutions int           `koanf:"auto_min_executions"`
	ShadowMode        bool          `koanf:"shadow_mode"`
	SuggestionTTL     time.Duration `koanf:"suggestion_ttl"`
	DecayInterval     time.Duration `koanf:"decay_interval"`
}

// ConversationConfig holds conversation grouping settings.
type ConversationConfig struct {
	GapWindow       time.Duration `koanf:"gap_window"`
	TakeoverLockout time.Duration `koanf:"takeover_lockout"`
}

// SafetyConfig holds safety screening settings.
type SafetyConfig struct {
	RulesPath         string `koanf:"rules_path"`
	AutoBudgetPerHour int    `koanf:"auto_budget_per_hour"`
}

// NATSConfig holds event publishing settings.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Enabled       bool   `koanf:"enabled"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	default:
		return fmt.Errorf("embeddings.provider must be fastembed or openai, got %q", c.Embeddings.Provider)
	}

	switch c.LLM.Provider {
	case "disabled", "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be disabled, anthropic or openai, got %q", c.LLM.Provider)
	}
	if c.LLM.Provider != "disabled" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key required when llm.provider is %q", c.LLM.Provider)
	}

	if err := validateThresholds(c.Engine); err != nil {
		return err
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	return nil
}

// validateThresholds checks that engine thresholds are in range and ordered.
func validateThresholds(e EngineConfig) error {
	for name, v := range map[string]float64{
		"engine.dedup_threshold":   e.DedupThreshold,
		"engine.auto_threshold":    e.AutoThreshold,
		"engine.suggest_threshold": e.SuggestThreshold,
		"engine.match_floor":       e.MatchFloor,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", name, v)
		}
	}
	if e.MatchFloor > e.SuggestThreshold {
		return fmt.Errorf("engine.match_floor (%v) must not exceed engine.suggest_threshold (%v)",
			e.MatchFloor, e.SuggestThreshold)
	}
	if e.SuggestThreshold > e.AutoThreshold {
		return fmt.Errorf("engine.suggest_threshold (%v) must not exceed engine.auto_threshold (%v)",
			e.SuggestThreshold, e.AutoThreshold)
	}
	if e.AutoMinExecutions < 0 {
		return fmt.Errorf("engine.auto_min_executions must not be negative")
	}
	return nil
}
