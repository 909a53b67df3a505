package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

const gatewayCompletePath = "/internal/v1/complete"

type gatewayClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewGatewayClient posts completions to an internal HTTP gateway that fronts the model providers.
func NewGatewayClient(url, apiKey string, httpClient *http.Client) interfaces.LLMClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &gatewayClient{
		url:        strings.TrimRight(url, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *gatewayClient) Complete(ctx context.Context, request models.CompletionRequest) (*models.Completion, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GatewayClient.Complete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("model", request.Model, "maxTokens", request.MaxTokens)

	payload, err := json.Marshal(dto.CompletionRequest{
		Model:     request.Model,
		System:    request.System,
		Prompt:    request.Prompt,
		MaxTokens: request.MaxTokens,
		RequestID: utils.GetRequestIdFromContext(ctx),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(apperrors.ErrLLMCallFailed, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+gatewayCompletePath, bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(apperrors.ErrLLMCallFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Beacon-API-KEY", c.apiKey)
	req = tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(apperrors.ErrLLMCallFailed, "gateway request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(apperrors.ErrLLMCallFailed, "unable to read gateway response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = errors.Wrapf(apperrors.ErrLLMCallFailed, "gateway returned status %d: %s", resp.StatusCode, utils.TruncateRunes(string(body), 200))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var response dto.CompletionResponse
	if err = json.Unmarshal(body, &response); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(apperrors.ErrLLMCallFailed, "failed to unmarshal gateway response: %v", err)
	}
	if response.Error != "" {
		err = errors.Wrap(apperrors.ErrLLMCallFailed, response.Error)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if strings.TrimSpace(response.Text) == "" {
		err = errors.Wrap(apperrors.ErrLLMCallFailed, "empty completion")
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("usage.prompt", response.Usage.PromptTokens, "usage.completion", response.Usage.CompletionTokens)
	return &models.Completion{
		Text: response.Text,
		Usage: models.CompletionUsage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
		},
	}, nil
}
