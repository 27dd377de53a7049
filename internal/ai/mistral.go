package ai

import (
	"strings"
)

// Mistral's chat API is wire-compatible with the openai chat-completions
// format, tool calling included, so the provider reuses that request path
// under its own base URL.

const defaultMistralBaseURL = "https://api.mistral.ai/v1"

type mistralConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

func createMistralFactory(args interface{}) (IChatProvider, error) {
	cfg := &mistralConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultMistralBaseURL
	}
	return &mistralProvider{openAIProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
	}}, nil
}

type mistralProvider struct {
	openAIProvider
}

func (p *mistralProvider) Name() string {
	return "mistral"
}

func init() {
	Register("mistral", createMistralFactory)
}
