package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
	"github.com/asergian/beacon-sub001/services/cache"
	"github.com/asergian/beacon-sub001/services/linguistic"
	"github.com/asergian/beacon-sub001/services/parser"
)

var fixedNow = time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeSettings struct {
	snapshot models.SettingsSnapshot
	err      error
}

func (f *fakeSettings) GetSnapshot(_ context.Context, userID string) (*models.SettingsSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snapshot := f.snapshot
	snapshot.UserID = userID
	return &snapshot, nil
}

type fakeFetcher struct {
	mu               sync.Mutex
	listed           []string
	messages         map[string]models.RawMessage
	listErr          error
	fetchErr         error
	failAfterBatches int
	gate             chan struct{}
	since            time.Time
	fetched          []string
}

func (f *fakeFetcher) ListMessageIDs(_ context.Context, _, _ string, since time.Time, maxResults int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := append([]string{}, f.listed...)
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (f *fakeFetcher) FetchBatches(ctx context.Context, _ string, ids []string, batchSize int, fn func(batch []models.RawMessage) error) error {
	if batchSize <= 0 {
		batchSize = 2
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for i, chunk := range utils.Chunk(ids, batchSize) {
		if f.fetchErr != nil && i == f.failAfterBatches {
			return f.fetchErr
		}
		batch := make([]models.RawMessage, 0, len(chunk))
		f.mu.Lock()
		for _, id := range chunk {
			f.fetched = append(f.fetched, id)
			if raw, ok := f.messages[id]; ok {
				batch = append(batch, raw)
			}
		}
		f.mu.Unlock()
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, credentialRef string, ids []string) ([]models.RawMessage, error) {
	var out []models.RawMessage
	err := f.FetchBatches(ctx, credentialRef, ids, 0, func(batch []models.RawMessage) error {
		out = append(out, batch...)
		return nil
	})
	return out, err
}

func (f *fakeFetcher) Fetch(ctx context.Context, credentialRef, query string, since time.Time, maxResults int) ([]models.RawMessage, error) {
	ids, err := f.ListMessageIDs(ctx, credentialRef, query, since, maxResults)
	if err != nil {
		return nil, err
	}
	return f.FetchMessages(ctx, credentialRef, ids)
}

func (f *fakeFetcher) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.fetched...)
}

type fakeSemantic struct {
	mu         sync.Mutex
	chunkSize  int
	priorities map[string]int
	categories map[string]string
	failing    map[string]bool
	analyzed   []string
}

func (f *fakeSemantic) AnalyzeBatch(ctx context.Context, inputs []models.AnalysisInput, settings models.SettingsSnapshot) models.SemanticBatchResult {
	return f.AnalyzeChunks(ctx, inputs, settings, nil)
}

func (f *fakeSemantic) AnalyzeChunks(_ context.Context, inputs []models.AnalysisInput, settings models.SettingsSnapshot, onChunk func(models.SemanticBatchResult)) models.SemanticBatchResult {
	version := settings.Version()
	out := models.SemanticBatchResult{Results: []models.AnalysisResult{}, Errors: []models.ItemError{}}
	for _, chunk := range utils.Chunk(inputs, f.chunkSize) {
		part := models.SemanticBatchResult{Errors: []models.ItemError{}, Chunks: 1}
		for _, input := range chunk {
			id := input.Message.ID
			f.mu.Lock()
			f.analyzed = append(f.analyzed, id)
			f.mu.Unlock()

			if f.failing[id] {
				part.Results = append(part.Results, models.NewFallbackAnalysis(input, version, fixedNow))
				part.Errors = append(part.Errors, models.ItemError{Kind: "llm_call_failed", Stage: enum.StageAnalyze, MessageID: id, Message: "llm call failed"})
				continue
			}
			priority, ok := f.priorities[id]
			if !ok {
				priority = 50
			}
			category := f.categories[id]
			if category == "" {
				category = "Work"
			}
			usage := models.TokenUsage{PromptTokens: 10, CompletionTokens: 5}
			part.Usage = part.Usage.Add(usage)
			part.Results = append(part.Results, models.AnalysisResult{
				MessageID:       id,
				Category:        category,
				Priority:        priority,
				Usage:           usage,
				SettingsVersion: version,
				AnalyzedAt:      fixedNow,
			})
		}
		out.Results = append(out.Results, part.Results...)
		out.Errors = append(out.Errors, part.Errors...)
		out.Usage = out.Usage.Add(part.Usage)
		out.Chunks++
		if onChunk != nil {
			onChunk(part)
		}
	}
	return out
}

func (f *fakeSemantic) analyzedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.analyzed...)
}

type fakeActivity struct {
	records chan models.ActivityLog
}

func (f *fakeActivity) Record(_ context.Context, activity models.ActivityLog) {
	f.records <- activity
}

type brokenBackend struct{}

var errBackendDown = errors.New("connection refused")

func (brokenBackend) Get(context.Context, string, string) ([]byte, error) { return nil, errBackendDown }
func (brokenBackend) GetMany(context.Context, string, []string) (map[string][]byte, error) {
	return nil, errBackendDown
}
func (brokenBackend) Put(context.Context, string, string, []byte, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) PutMany(context.Context, string, map[string][]byte, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) Delete(context.Context, string, ...string) error { return errBackendDown }
func (brokenBackend) SetCounters(context.Context, string, string, []string, int64, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) IncrCounters(context.Context, string, string, []string, int64) (map[string]int64, error) {
	return nil, errBackendDown
}
func (brokenBackend) GetCounters(context.Context, string, string) (map[string]int64, error) {
	return nil, errBackendDown
}
func (brokenBackend) DeleteCounters(context.Context, string, string, ...string) error {
	return errBackendDown
}
func (brokenBackend) Ping(context.Context) error { return errBackendDown }

type harness struct {
	settings     *fakeSettings
	fetcher      *fakeFetcher
	semantic     *fakeSemantic
	activity     *fakeActivity
	cache        interfaces.ResultCache
	deps         Dependencies
	orchestrator interfaces.PipelineOrchestrator
}

func testPipelineConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		DefaultDaysBack:   3,
		MaxDaysBack:       30,
		DefaultMaxResults: 50,
		MaxResultsLimit:   500,
		EventBuffer:       4,
		TerminalTimeout:   2 * time.Second,
		EventSendTimeout:  2 * time.Second,
		ActivityTimeout:   time.Second,
	}
}

func newHarness(t *testing.T, backend interfaces.CacheBackend) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	if backend == nil {
		backend = cache.NewMemoryBackend(clock)
	}

	h := &harness{
		settings: &fakeSettings{snapshot: models.SettingsSnapshot{
			AIEnabled:         true,
			ModelType:         "fast",
			ContextLength:     2000,
			SummaryLength:     200,
			PriorityThreshold: 70,
			CacheDurationDays: 7,
			Timezone:          "UTC",
		}},
		fetcher:  &fakeFetcher{messages: map[string]models.RawMessage{}},
		semantic: &fakeSemantic{chunkSize: 2},
		activity: &fakeActivity{records: make(chan models.ActivityLog, 8)},
		cache: cache.NewResultCache(&config.CacheConfig{
			Namespace:             "test",
			MissEvictionThreshold: 3,
			IndexTTL:              720 * time.Hour,
			OperationTimeout:      time.Second,
		}, backend, log, cache.WithClock(clock)),
	}

	linguisticAnalyzer := linguistic.NewLinguisticAnalyzer(&config.LinguisticConfig{
		Mode:         "inprocess",
		MaxTextRunes: 1000,
		MaxKeywords:  5,
	}, nil, log)

	h.deps = Dependencies{
		Settings:   h.settings,
		Fetcher:    h.fetcher,
		Parser:     parser.NewContentParser(log, nil),
		Cache:      h.cache,
		Linguistic: linguisticAnalyzer,
		Semantic:   h.semantic,
		Activity:   h.activity,
	}
	h.orchestrator = NewPipelineOrchestrator(testPipelineConfig(), h.deps, log, WithClock(clock))
	return h
}

func rawMessage(id, subject string) models.RawMessage {
	return models.RawMessage{
		ID:       id,
		ThreadID: "t-" + id,
		Headers: map[string]string{
			"From":    "Ann Lee <ann@example.com>",
			"To":      "me@example.com",
			"Subject": subject,
			"Date":    "Fri, 06 Mar 2026 09:00:00 +0000",
		},
		BodyText:        "Can you send the report by Friday?",
		InternalDateISO: "2026-03-06T09:00:00Z",
		Preparsed:       true,
	}
}

// provide makes ids listable and fetchable.
func (h *harness) provide(ids ...string) {
	for _, id := range ids {
		h.fetcher.listed = append(h.fetcher.listed, id)
		h.fetcher.messages[id] = rawMessage(id, "Subject "+id)
	}
}

// seed caches id with an analysis produced under version.
func (h *harness) seed(t *testing.T, id string, priority int, version string) {
	t.Helper()
	msg, err := parser.FromPreparsed(rawMessage(id, "Subject "+id))
	require.NoError(t, err)
	analysis := models.AnalysisResult{MessageID: id, Category: "Work", Priority: priority, SettingsVersion: version, AnalyzedAt: fixedNow}
	err = h.cache.Put(context.Background(), "u1", []models.CacheEntry{{
		Message:         msg,
		Analysis:        &analysis,
		SettingsVersion: version,
	}}, 7*24*time.Hour)
	require.NoError(t, err)
}

func (h *harness) version() string {
	return h.settings.snapshot.Version()
}

func testRequest() models.PipelineRequest {
	return models.PipelineRequest{UserID: "u1", CredentialRef: "cred-1", DaysBack: 3, MaxResults: 10}
}

func messageIDs(messages []models.PipelineMessage) []string {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.Message.ID
	}
	return ids
}

func collect(t *testing.T, events <-chan models.PipelineEvent) []models.PipelineEvent {
	t.Helper()
	var out []models.PipelineEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-deadline:
			t.Fatal("stream did not close")
			return out
		}
	}
}

func TestRun_OneCachedOneFresh(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2")
	h.seed(t, "m1", 80, h.version())

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.Equal(t, []string{"m1", "m2"}, messageIDs(result.Messages))
	assert.True(t, result.Messages[0].Cached)
	assert.Equal(t, 80, result.Messages[0].Analysis.Priority)
	assert.True(t, result.Messages[0].Highlighted)
	assert.False(t, result.Messages[1].Cached)
	assert.False(t, result.Messages[1].Highlighted)
	assert.Equal(t, "Subject m2", result.Messages[1].Message.Subject)

	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), h.fetcher.since)
	assert.Equal(t, []string{"m2"}, h.fetcher.fetchedIDs())
	assert.Equal(t, []string{"m2"}, h.semantic.analyzedIDs())

	stats := result.Stats
	assert.Equal(t, enum.StateDone, stats.State)
	assert.Equal(t, 2, stats.Listed)
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 1, stats.CacheMisses)
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.Parsed)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 2, stats.Returned)
	assert.Equal(t, 1, stats.FetchBatches)
	assert.Equal(t, 15, stats.Usage.TotalTokens())
	assert.Empty(t, result.Errors)

	entries, err := h.cache.Get(context.Background(), "u1", []string{"m2"}, h.version())
	require.NoError(t, err)
	require.Contains(t, entries, "m2")
	require.NotNil(t, entries["m2"].Analysis)
	assert.Equal(t, 50, entries["m2"].Analysis.Priority)

	select {
	case activity := <-h.activity.records:
		assert.Equal(t, "u1", activity.UserID)
		assert.Equal(t, 2, activity.MessageCount)
		assert.Equal(t, "done", activity.State)
		assert.Equal(t, result.RequestID, activity.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("activity was not recorded")
	}
}

func TestStream_CachedFirstAndSingleStats(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2", "m3", "m4")
	h.seed(t, "m1", 80, h.version())

	events := collect(t, h.orchestrator.Stream(context.Background(), testRequest()))
	require.NotEmpty(t, events)

	assert.Equal(t, enum.EventState, events[0].Type)
	assert.Equal(t, enum.StateContextSetup, events[0].State)

	var order []string
	cachedAt, firstMessagesAt, statsCount := -1, -1, 0
	for i, event := range events {
		assert.NotEmpty(t, event.ID)
		switch event.Type {
		case enum.EventCached:
			assert.Equal(t, -1, cachedAt, "one cached event")
			cachedAt = i
			for _, m := range event.Messages {
				assert.True(t, m.Cached)
				order = append(order, m.Message.ID)
			}
		case enum.EventMessages:
			if firstMessagesAt == -1 {
				firstMessagesAt = i
			}
			for _, m := range event.Messages {
				assert.False(t, m.Cached)
				order = append(order, m.Message.ID)
			}
		case enum.EventStats:
			statsCount++
		}
	}

	assert.Equal(t, 1, statsCount)
	last := events[len(events)-1]
	require.Equal(t, enum.EventStats, last.Type)
	assert.Equal(t, enum.StateDone, last.State)
	assert.Equal(t, 4, last.Stats.Returned)
	assert.Equal(t, 2, last.Stats.FetchBatches)

	before := events[len(events)-2]
	assert.Equal(t, enum.EventState, before.Type)
	assert.Equal(t, enum.StateDone, before.State)

	require.NotEqual(t, -1, cachedAt)
	require.NotEqual(t, -1, firstMessagesAt)
	assert.Less(t, cachedAt, firstMessagesAt)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, order)
}

func TestRun_FetchFailureReturnsPartialResult(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2", "m3", "m4")
	h.fetcher.fetchErr = apperrors.NewFetchFailed(4, apperrors.ErrWorkerTimeout)
	h.fetcher.failAfterBatches = 1

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)

	require.NotNil(t, result)
	assert.Equal(t, enum.StateFailed, result.Stats.State)
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(result.Messages))
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "fetch_failed", result.Errors[len(result.Errors)-1].Kind)
	assert.Equal(t, enum.StageFetch, result.Errors[len(result.Errors)-1].Stage)
}

func TestRun_ListFailureIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.listErr = apperrors.NewFetchFailed(1, apperrors.ErrWorkerCrashed)

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	assert.Equal(t, enum.StateFailed, result.Stats.State)
	assert.Empty(t, result.Messages)
	assert.Empty(t, h.fetcher.fetchedIDs())
}

func TestRun_InvalidRequest(t *testing.T) {
	h := newHarness(t, nil)
	request := testRequest()
	request.CredentialRef = " "

	result, err := h.orchestrator.Run(context.Background(), request)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Equal(t, enum.StateFailed, result.Stats.State)
	assert.NotEmpty(t, result.RequestID)

	events := collect(t, h.orchestrator.Stream(context.Background(), request))
	require.Len(t, events, 3)
	assert.Equal(t, enum.StateContextSetup, events[0].State)
	assert.Equal(t, enum.StateFailed, events[1].State)
	assert.Equal(t, enum.EventStats, events[2].Type)
	assert.Contains(t, events[2].Error, "credentialRef")
}

func TestRun_SettingsUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.settings.err = errors.New("db down")

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	assert.ErrorIs(t, err, apperrors.ErrSettingsUnavailable)
	assert.Equal(t, "settings_unavailable", result.Errors[0].Kind)
}

func TestRun_ParseErrorDoesNotAbort(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2", "m3")
	h.fetcher.messages["m2"] = models.RawMessage{ID: "m2", Preparsed: true}

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m3"}, messageIDs(result.Messages))
	assert.Equal(t, 1, result.Stats.ParseErrors)
	assert.Equal(t, 3, result.Stats.Fetched)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "parse_error", result.Errors[0].Kind)
	assert.Equal(t, enum.StageParse, result.Errors[0].Stage)
	assert.Equal(t, "m2", result.Errors[0].MessageID)
}

func TestRun_FiltersAndHighlights(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2", "m3")
	h.semantic.priorities = map[string]int{"m1": 90, "m2": 20, "m3": 60}
	h.semantic.categories = map[string]string{"m3": "Finance"}

	request := testRequest()
	request.MinPriority = 30
	result, err := h.orchestrator.Run(context.Background(), request)
	require.NoError(t, err)

	require.Equal(t, []string{"m1", "m3"}, messageIDs(result.Messages))
	assert.True(t, result.Messages[0].Highlighted)
	assert.False(t, result.Messages[1].Highlighted)
	assert.Equal(t, 1, result.Stats.FilteredOut)
	assert.True(t, fixedNow.AddDate(0, 0, -1).Add(-3*time.Hour).Equal(result.Messages[0].LocalDate))

	// The second request is served from cache and filtered the same way.
	request.Categories = []string{"finance"}
	result, err = h.orchestrator.Run(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, messageIDs(result.Messages))
	assert.True(t, result.Messages[0].Cached)
	assert.Equal(t, 3, result.Stats.CacheHits)
	assert.Equal(t, 2, result.Stats.FilteredOut)
	assert.Zero(t, result.Stats.Fetched)
}

func TestRun_SettingsChangeReanalyzesWithoutRefetch(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1")
	h.seed(t, "m1", 80, "previous-version")

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Empty(t, h.fetcher.fetchedIDs())
	assert.Equal(t, []string{"m1"}, h.semantic.analyzedIDs())
	assert.Equal(t, 1, result.Stats.Reanalyzed)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, 50, result.Messages[0].Analysis.Priority)

	entries, err := h.cache.Get(context.Background(), "u1", []string{"m1"}, h.version())
	require.NoError(t, err)
	require.NotNil(t, entries["m1"].Analysis)
}

func TestRun_CacheUnavailableDegradesToMissAll(t *testing.T) {
	h := newHarness(t, brokenBackend{})
	h.provide("m1", "m2")

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2"}, messageIDs(result.Messages))
	assert.True(t, result.Stats.CacheUnavailable)
	assert.Equal(t, []string{"m1", "m2"}, h.fetcher.fetchedIDs())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "cache_unavailable", result.Errors[0].Kind)
}

func TestRun_FallbackResultsAreNotCached(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2")
	h.semantic.failing = map[string]bool{"m2": true}

	result, err := h.orchestrator.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.True(t, result.Messages[1].Analysis.Fallback)
	assert.Equal(t, enum.CategoryUnclassified, result.Messages[1].Analysis.Category)
	assert.Equal(t, 1, result.Stats.FallbackCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "llm_call_failed", result.Errors[0].Kind)

	entries, err := h.cache.Get(context.Background(), "u1", []string{"m1", "m2"}, h.version())
	require.NoError(t, err)
	assert.NotNil(t, entries["m1"].Analysis)
	require.Contains(t, entries, "m2")
	assert.Nil(t, entries["m2"].Analysis)
}

func TestStream_CancellationStopsNewWork(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2", "m3")
	h.fetcher.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := h.orchestrator.Stream(ctx, testRequest())

	for event := range events {
		if event.Type == enum.EventCached {
			break
		}
	}
	cancel()
	close(h.fetcher.gate)

	rest := collect(t, events)
	require.NotEmpty(t, rest)
	last := rest[len(rest)-1]
	assert.Equal(t, enum.EventStats, last.Type)
	assert.Equal(t, enum.StateFailed, last.State)
	assert.Zero(t, last.Stats.FetchBatches)
	assert.Empty(t, h.semantic.analyzedIDs())

	statsCount := 0
	for _, event := range rest {
		if event.Type == enum.EventStats {
			statsCount++
		}
	}
	assert.Equal(t, 1, statsCount)
}

func TestStream_StalledConsumerCancelsRun(t *testing.T) {
	h := newHarness(t, nil)
	h.provide("m1", "m2", "m3", "m4")

	cfg := testPipelineConfig()
	cfg.EventBuffer = 1
	cfg.EventSendTimeout = 50 * time.Millisecond
	cfg.TerminalTimeout = 50 * time.Millisecond
	orchestrator := NewPipelineOrchestrator(cfg, h.deps, logger.NewNopLogger(), WithClock(clock))

	events := orchestrator.Stream(context.Background(), testRequest())

	// never read until the producer has had time to give up
	time.Sleep(300 * time.Millisecond)

	drained := collect(t, events)

	require.Len(t, drained, 1, "only the buffered event survives")
	assert.Equal(t, enum.EventState, drained[0].Type)
	assert.Empty(t, h.semantic.analyzedIDs(), "the run stops once the consumer is gone")
}
