package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port              int              `json:"port"`
	LogConfig         logger.LogConfig `json:"log_config"`
	CORSAllowlist     []string         `json:"cors_allowlist"`
	RateLimitWindowMS int              `json:"rate_limit_window_ms"`
	Chat              ChatConfig       `json:"chat"`
	Embedding         EmbeddingConfig  `json:"embedding"`
	Cache             CacheConfig      `json:"cache"`
	Index             IndexConfig      `json:"index"`
	Prompt            PromptConfig     `json:"prompt"`
	FHIR              FHIRConfig       `json:"fhir"`
	Schedule          ScheduleConfig   `json:"schedule"`
}

type ChatConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	Data           interface{} `json:"data"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

type EmbeddingConfig struct {
	Provider          string      `json:"provider"`
	Model             string      `json:"model"`
	Data              interface{} `json:"data"`
	TimeoutSeconds    int         `json:"timeout_seconds"`
	RequestIntervalMS int         `json:"request_interval_ms"`
	CacheSize         int         `json:"cache_size"`
	CacheTTLMinutes   int         `json:"cache_ttl_minutes"`
}

type CacheConfig struct {
	Type           string      `json:"type"`
	Data           interface{} `json:"data"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

type IndexConfig struct {
	Type         string      `json:"type"`
	Data         interface{} `json:"data"`
	DocumentPath string      `json:"document_path"`
	ChunkSize    int         `json:"chunk_size"`
}

type PromptConfig struct {
	MaxContextChars int `json:"max_context_chars"`
	MaxToolChars    int `json:"max_tool_chars"`
}

type FHIRConfig struct {
	BaseURL        string      `json:"base_url"`
	TokenURL       string      `json:"token_url"`
	ClientID       string      `json:"client_id"`
	PrivateKeyPath string      `json:"private_key_path"`
	Resources      ResourceIDs `json:"resources"`
}

// ResourceIDs carries the per-resource FHIR ids to fetch when a patient is
// loaded by reference rather than by inline snapshot.
type ResourceIDs struct {
	Patient            string `json:"patient"`
	Coverage           string `json:"coverage"`
	Condition          string `json:"condition"`
	DiagnosticReport   string `json:"diagnostic_report"`
	AllergyIntolerance string `json:"allergy_intolerance"`
}

type ScheduleConfig struct {
	IndexRefreshSpec string `json:"index_refresh_spec"`
	CacheSweepSpec   string `json:"cache_sweep_spec"`
}

func (c *FHIRConfig) Enabled() bool {
	return c.BaseURL != "" && c.TokenURL != "" && c.ClientID != "" && c.PrivateKeyPath != ""
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Chat.Provider == "" || cfg.Chat.Model == "" {
		return nil, fmt.Errorf("chat.provider and chat.model are required")
	}
	if cfg.Embedding.Provider == "" || cfg.Embedding.Model == "" {
		return nil, fmt.Errorf("embedding.provider and embedding.model are required")
	}
	if cfg.Chat.TimeoutSeconds == 0 {
		cfg.Chat.TimeoutSeconds = 60
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.RequestIntervalMS == 0 {
		cfg.Embedding.RequestIntervalMS = 1000
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.TimeoutSeconds == 0 {
		cfg.Cache.TimeoutSeconds = 5
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Index.DocumentPath == "" {
		return nil, fmt.Errorf("index.document_path is required")
	}
	if cfg.Index.ChunkSize == 0 {
		cfg.Index.ChunkSize = 500
	}
	if cfg.Prompt.MaxContextChars == 0 {
		cfg.Prompt.MaxContextChars = 6000
	}
	if cfg.Prompt.MaxToolChars == 0 {
		cfg.Prompt.MaxToolChars = 4000
	}
	if cfg.Schedule.IndexRefreshSpec == "" {
		cfg.Schedule.IndexRefreshSpec = "*/5 * * * *"
	}
	if cfg.Schedule.CacheSweepSpec == "" {
		cfg.Schedule.CacheSweepSpec = "*/30 * * * *"
	}
	return &cfg, nil
}
