package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/api/middleware"
	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/services/quota"
)

const testAPIKey = "secret-key"

type fakePipeline struct {
	mu       sync.Mutex
	requests []models.PipelineRequest
	result   *models.PipelineResult
	err      error
	events   []models.PipelineEvent
}

func (f *fakePipeline) Run(_ context.Context, request models.PipelineRequest) (*models.PipelineResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakePipeline) Stream(_ context.Context, request models.PipelineRequest) <-chan models.PipelineEvent {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	out := make(chan models.PipelineEvent, len(f.events))
	for _, e := range f.events {
		out <- e
	}
	close(out)
	return out
}

func (f *fakePipeline) lastRequest(t *testing.T) models.PipelineRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestRouter(t *testing.T, pipeline *fakePipeline, checks map[string]func(context.Context) error) (*gin.Engine, *config.QuotaConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	quotaCfg := &config.QuotaConfig{Window: 100 * time.Second, WindowCeiling: 100, DailyCeiling: 1000}
	governor := quota.NewQuotaGovernor(quotaCfg, logger.NewNopLogger())
	_, err := governor.TryAcquire("cred-1", 15)
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, RouteDependencies{
		Pipeline:        pipeline,
		Quota:           governor,
		ReadinessChecks: checks,
		Log:             logger.NewNopLogger(),
	}, testAPIKey)
	return r, quotaCfg
}

func doRequest(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func authHeaders() map[string]string {
	return map[string]string{
		middleware.APIKeyHeader:    testAPIKey,
		"X-Beacon-User-Id":         "u1",
		middleware.RequestIdHeader: "req-123",
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, &fakePipeline{}, nil)

	w := doRequest(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadiness(t *testing.T) {
	checks := map[string]func(context.Context) error{
		"cache":    func(context.Context) error { return nil },
		"database": func(context.Context) error { return errors.New("connection refused") },
	}
	r, _ := newTestRouter(t, &fakePipeline{}, checks)

	w := doRequest(r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"cache":"ok","database":"connection refused"}}`, w.Body.String())
}

func TestPipeline_RequiresAPIKey(t *testing.T) {
	r, _ := newTestRouter(t, &fakePipeline{}, nil)

	w := doRequest(r, http.MethodPost, "/v1/pipeline", `{"credentialRef":"cred-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/v1/pipeline", `{"credentialRef":"cred-1"}`, map[string]string{middleware.APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")
}

func TestPipeline_RequiresUser(t *testing.T) {
	r, _ := newTestRouter(t, &fakePipeline{}, nil)

	w := doRequest(r, http.MethodPost, "/v1/pipeline", `{"credentialRef":"cred-1"}`, map[string]string{middleware.APIKeyHeader: testAPIKey})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "user id header is required")
}

func TestPipeline_InvalidBody(t *testing.T) {
	pipeline := &fakePipeline{}
	r, _ := newTestRouter(t, pipeline, nil)

	w := doRequest(r, http.MethodPost, "/v1/pipeline", `{"daysBack":3}`, authHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Kind)
	assert.Empty(t, pipeline.requests)
}

func TestPipeline_Run(t *testing.T) {
	pipeline := &fakePipeline{
		result: &models.PipelineResult{
			RequestID: "req-123",
			Messages: []models.PipelineMessage{{
				Message:     models.CanonicalMessage{ID: "m1", Subject: "Invoice"},
				Analysis:    models.AnalysisResult{MessageID: "m1", Category: "Finance", Priority: 80},
				Highlighted: true,
			}},
			Stats: models.PipelineStats{RequestID: "req-123", State: enum.StateDone, Returned: 1},
		},
	}
	r, _ := newTestRouter(t, pipeline, nil)

	w := doRequest(r, http.MethodPost, "/v1/pipeline", `{"credentialRef":"cred-1","daysBack":3,"maxResults":10,"categories":["finance"]}`, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIdHeader))

	request := pipeline.lastRequest(t)
	assert.Equal(t, "u1", request.UserID)
	assert.Equal(t, "req-123", request.RequestID)
	assert.Equal(t, "cred-1", request.CredentialRef)
	assert.Equal(t, 3, request.DaysBack)
	assert.Equal(t, 10, request.MaxResults)
	assert.Equal(t, []string{"finance"}, request.Categories)
	assert.False(t, request.Stream)

	var resp dto.PipelineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m1", resp.Messages[0].Message.ID)
	assert.True(t, resp.Messages[0].Highlighted)
	assert.Equal(t, enum.StateDone, resp.Stats.State)
	assert.NotNil(t, resp.Errors)
}

func TestPipeline_RunErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid request", pkgerrors.Wrap(apperrors.ErrInvalidRequest, "daysBack must not be negative"), http.StatusBadRequest, "invalid_request"},
		{"settings unavailable", pkgerrors.Wrap(apperrors.ErrSettingsUnavailable, "db down"), http.StatusServiceUnavailable, "settings_unavailable"},
		{"fetch failed", apperrors.NewFetchFailed(3, errors.New("worker crashed")), http.StatusBadGateway, "fetch_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipeline := &fakePipeline{
				result: &models.PipelineResult{
					RequestID: "req-123",
					Messages:  []models.PipelineMessage{{Message: models.CanonicalMessage{ID: "m1"}}},
					Stats:     models.PipelineStats{State: enum.StateFailed},
				},
				err: tc.err,
			}
			r, _ := newTestRouter(t, pipeline, nil)

			w := doRequest(r, http.MethodPost, "/v1/pipeline", `{"credentialRef":"cred-1"}`, authHeaders())
			assert.Equal(t, tc.status, w.Code)

			var resp dto.PipelineResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.kind, resp.Error.Kind)
			assert.Len(t, resp.Messages, 1)
			assert.Equal(t, enum.StateFailed, resp.Stats.State)
		})
	}
}

func TestPipeline_Stream(t *testing.T) {
	stats := models.PipelineStats{State: enum.StateDone, Returned: 1}
	pipeline := &fakePipeline{
		events: []models.PipelineEvent{
			{ID: "evt_1", Type: enum.EventState, State: enum.StateContextSetup},
			{ID: "evt_2", Type: enum.EventCached, Messages: []models.PipelineMessage{{Message: models.CanonicalMessage{ID: "m1"}, Cached: true}}},
			{ID: "evt_3", Type: enum.EventState, State: enum.StateDone},
			{ID: "evt_4", Type: enum.EventStats, State: enum.StateDone, Stats: &stats},
		},
	}
	r, _ := newTestRouter(t, pipeline, nil)

	w := doRequest(r, http.MethodPost, "/v1/pipeline/stream", `{"credentialRef":"cred-1"}`, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, pipeline.lastRequest(t).Stream)

	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, frames, 4)
	assert.True(t, strings.HasPrefix(frames[0], "id: evt_1\nevent: state\ndata: "))
	assert.True(t, strings.HasPrefix(frames[1], "id: evt_2\nevent: cached\ndata: "))
	assert.True(t, strings.HasPrefix(frames[3], "id: evt_4\nevent: stats\ndata: "))

	var last models.PipelineEvent
	payload := strings.SplitN(frames[3], "data: ", 2)[1]
	require.NoError(t, json.Unmarshal([]byte(payload), &last))
	require.NotNil(t, last.Stats)
	assert.Equal(t, 1, last.Stats.Returned)
}

func TestQuotaStatus(t *testing.T) {
	r, cfg := newTestRouter(t, &fakePipeline{}, nil)

	w := doRequest(r, http.MethodGet, "/v1/quota/cred-1", "", authHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var state models.QuotaState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "cred-1", state.Credential)
	assert.Equal(t, 15, state.WindowUsed)
	assert.Equal(t, cfg.WindowCeiling, state.WindowCeiling)
	assert.Equal(t, 15, state.DayUsed)
}
