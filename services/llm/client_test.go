package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jetapi "go.jetify.com/ai/api"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/dto"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
)

func TestGatewayClient_Complete(t *testing.T) {
	var received dto.CompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, gatewayCompletePath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Beacon-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(dto.CompletionResponse{
			Text:   `{"results":[]}`,
			Status: "ok",
			Usage:  dto.CompletionUsage{PromptTokens: 120, CompletionTokens: 30},
		})
	}))
	defer server.Close()

	client := NewGatewayClient(server.URL+"/", "secret", server.Client())
	completion, err := client.Complete(context.Background(), models.CompletionRequest{
		System:    "system",
		Prompt:    "prompt",
		MaxTokens: 500,
		Model:     "fast-model",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"results":[]}`, completion.Text)
	assert.Equal(t, 120, completion.Usage.PromptTokens)
	assert.Equal(t, 30, completion.Usage.CompletionTokens)
	assert.Equal(t, "fast-model", received.Model)
	assert.Equal(t, "system", received.System)
	assert.Equal(t, 500, received.MaxTokens)
}

func TestGatewayClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", wantMsg: "status 502"},
		{name: "not json", status: http.StatusOK, body: "<html>", wantMsg: "unmarshal"},
		{name: "gateway error", status: http.StatusOK, body: `{"error":"overloaded"}`, wantMsg: "overloaded"},
		{name: "empty text", status: http.StatusOK, body: `{"text":"  "}`, wantMsg: "empty completion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewGatewayClient(server.URL, "", server.Client())
			_, err := client.Complete(context.Background(), models.CompletionRequest{Prompt: "p", Model: "m"})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrLLMCallFailed)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestGatewayClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewGatewayClient(url, "", nil).Complete(context.Background(), models.CompletionRequest{Prompt: "p", Model: "m"})
	assert.ErrorIs(t, err, apperrors.ErrLLMCallFailed)
	assert.Equal(t, "llm_call_failed", apperrors.Kind(err))
}

func TestNewLLMClient(t *testing.T) {
	log := logger.NewNopLogger()

	_, err := NewLLMClient(&config.LLMConfig{Provider: "anthropic"}, log)
	assert.Error(t, err, "missing api key")

	client, err := NewLLMClient(&config.LLMConfig{Provider: "anthropic", AnthropicAPIKey: "k"}, log)
	require.NoError(t, err)
	assert.IsType(t, &jetifyClient{}, client)

	client, err = NewLLMClient(&config.LLMConfig{Provider: "OpenAI", OpenAIAPIKey: "k"}, log)
	require.NoError(t, err)
	assert.IsType(t, &jetifyClient{}, client)

	_, err = NewLLMClient(&config.LLMConfig{Provider: "gateway"}, log)
	assert.Error(t, err)

	client, err = NewLLMClient(&config.LLMConfig{Provider: "gateway", GatewayURL: "http://localhost:1"}, log)
	require.NoError(t, err)
	assert.IsType(t, &gatewayClient{}, client)

	_, err = NewLLMClient(&config.LLMConfig{Provider: "bard"}, log)
	assert.Error(t, err)
}

func TestJetifyClient_EmptyModel(t *testing.T) {
	client := newJetifyClient(providerAnthropic, func(string) jetapi.LanguageModel { return nil })
	_, err := client.Complete(context.Background(), models.CompletionRequest{Prompt: "p"})
	assert.ErrorIs(t, err, apperrors.ErrLLMCallFailed)
}
