package llm

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
)

const (
	providerAnthropic = "anthropic"
	providerOpenAI    = "openai"
	providerGateway   = "gateway"
)

// NewLLMClient builds the completion client selected by LLM_PROVIDER.
func NewLLMClient(cfg *config.LLMConfig, log logger.Logger) (interfaces.LLMClient, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	log.Infof("Using LLM provider %q", provider)

	switch provider {
	case providerAnthropic, "":
		return newAnthropicClient(cfg)
	case providerOpenAI:
		return newOpenAIClient(cfg)
	case providerGateway:
		if strings.TrimSpace(cfg.GatewayURL) == "" {
			return nil, errors.New("LLM_GATEWAY_URL is required for the gateway provider")
		}
		return NewGatewayClient(cfg.GatewayURL, cfg.GatewayAPIKey, nil), nil
	default:
		return nil, errors.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
