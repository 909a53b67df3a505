package llm

import (
	"context"
	"strings"
	"sync"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/opentracing/opentracing-go"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/pkg/errors"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
)

type modelFactory func(modelID string) jetapi.LanguageModel

// jetifyClient drives Anthropic and OpenAI through the jetify ai abstraction. Language models are built
// lazily per model id and reused.
type jetifyClient struct {
	provider string
	build    modelFactory
	mu       sync.Mutex
	models   map[string]jetapi.LanguageModel
}

func newAnthropicClient(cfg *config.LLMConfig) (interfaces.LLMClient, error) {
	apiKey := strings.TrimSpace(cfg.AnthropicAPIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic api key is empty")
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(cfg.MaxRetries),
	}
	if endpoint := strings.TrimSpace(cfg.AnthropicBaseURL); endpoint != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}
	client := anthropicclient.NewClient(opts...)
	return newJetifyClient(providerAnthropic, func(modelID string) jetapi.LanguageModel {
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
	}), nil
}

func newOpenAIClient(cfg *config.LLMConfig) (interfaces.LLMClient, error) {
	apiKey := strings.TrimSpace(cfg.OpenAIAPIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(cfg.MaxRetries),
	}
	if endpoint := strings.TrimSpace(cfg.OpenAIBaseURL); endpoint != "" {
		opts = append(opts, openaioption.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}
	client := openaiclient.NewClient(opts...)
	return newJetifyClient(providerOpenAI, func(modelID string) jetapi.LanguageModel {
		return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
	}), nil
}

func newJetifyClient(provider string, build modelFactory) *jetifyClient {
	return &jetifyClient{
		provider: provider,
		build:    build,
		models:   make(map[string]jetapi.LanguageModel),
	}
}

func (c *jetifyClient) model(modelID string) jetapi.LanguageModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[modelID]; ok {
		return m
	}
	m := c.build(modelID)
	c.models[modelID] = m
	return m
}

func (c *jetifyClient) Complete(ctx context.Context, request models.CompletionRequest) (*models.Completion, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LLMClient.Complete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("provider", c.provider, "model", request.Model, "maxTokens", request.MaxTokens)

	if strings.TrimSpace(request.Model) == "" {
		err := errors.Wrap(apperrors.ErrLLMCallFailed, "model is empty")
		tracing.TraceErr(span, err)
		return nil, err
	}

	resp, err := jetai.GenerateText(
		ctx,
		buildPromptMessages(request.System, request.Prompt),
		jetai.WithModel(c.model(request.Model)),
		jetai.WithMaxOutputTokens(request.MaxTokens),
	)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(apperrors.ErrLLMCallFailed, "%s: %v", c.provider, err)
	}

	text, err := extractText(resp)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	usage := models.CompletionUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
	span.LogKV("usage.prompt", usage.PromptTokens, "usage.completion", usage.CompletionTokens)
	return &models.Completion{Text: text, Usage: usage}, nil
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errors.Wrap(apperrors.ErrLLMCallFailed, "empty response")
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.Wrap(apperrors.ErrLLMCallFailed, "empty response")
	}
	return text, nil
}
