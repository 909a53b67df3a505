package pipeline

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

// run is the state of one request. It is owned by a single goroutine; the semantic chunk callback runs
// on pool goroutines but is serialized and completes before AnalyzeChunks returns.
type run struct {
	o         *orchestrator
	req       models.PipelineRequest
	emit      func(models.PipelineEvent)
	state     enum.PipelineState
	settings  models.SettingsSnapshot
	version   string
	presenter presenter
	stats     models.PipelineStats
	errs      *apperrors.ItemErrors
	messages  []models.PipelineMessage
	cacheDown bool
	result    *models.PipelineResult
}

func newRun(o *orchestrator, req models.PipelineRequest, emit func(models.PipelineEvent)) *run {
	return &run{
		o:        o,
		req:      req,
		emit:     emit,
		state:    enum.StateContextSetup,
		errs:     apperrors.NewItemErrors(),
		messages: make([]models.PipelineMessage, 0),
	}
}

func (r *run) execute(ctx context.Context) (result *models.PipelineResult, err error) {
	r.stats.StartedAt = r.o.now()
	r.send(models.PipelineEvent{Type: enum.EventState, State: r.state})
	defer func() {
		result = r.finish(err)
	}()

	if err = r.setup(ctx); err != nil {
		return
	}
	ctx = utils.SetUserIdInContext(ctx, r.req.UserID)
	ctx = utils.SetRequestIdInContext(ctx, r.req.RequestID)

	var toFetch []string
	var stale []models.CanonicalMessage
	if toFetch, stale, err = r.cacheCheck(ctx); err != nil {
		return
	}

	if len(stale) > 0 {
		r.transition(enum.StateAnalyzing)
		entries := r.analyze(ctx, stale)
		r.transition(enum.StateFiltering)
		r.store(ctx, entries)
	}

	if len(toFetch) > 0 {
		err = r.fetchAndAnalyze(ctx, toFetch)
	}
	return
}

func (r *run) setup(ctx context.Context) error {
	req, err := normalizeRequest(r.o.cfg, r.req)
	r.req = req
	r.stats.RequestID = req.RequestID
	r.stats.UserID = req.UserID
	if err != nil {
		r.errs.Add(enum.StageSetup, "", err)
		return err
	}

	snapshot, err := r.o.deps.Settings.GetSnapshot(ctx, req.UserID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrSettingsUnavailable) {
			err = errors.Wrap(apperrors.ErrSettingsUnavailable, err.Error())
		}
		r.errs.Add(enum.StageSetup, "", err)
		return err
	}
	r.settings = *snapshot
	if req.CacheDurationDays > 0 {
		r.settings.CacheDurationDays = req.CacheDurationDays
	}
	r.version = r.settings.Version()
	r.presenter = newPresenter(req, r.settings)
	return nil
}

// cacheCheck lists the window, serves whatever the cache still holds and returns the ids that must be
// fetched plus the cached messages whose analysis is no longer valid.
func (r *run) cacheCheck(ctx context.Context) ([]string, []models.CanonicalMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PipelineOrchestrator.cacheCheck")
	defer span.Finish()
	r.transition(enum.StateCacheCheck)

	since := r.req.Since(r.o.now())
	listed, err := r.o.deps.Fetcher.ListMessageIDs(ctx, r.req.CredentialRef, r.req.Query, since, r.req.MaxResults)
	if err != nil {
		tracing.TraceErr(span, err)
		r.errs.Add(enum.StageFetch, "", err)
		return nil, nil, err
	}
	r.stats.Listed = len(listed)

	entries := map[string]models.CacheEntry{}
	cachedIDs, err := r.o.deps.Cache.CachedIDs(ctx, r.req.UserID)
	if err != nil {
		r.markCacheDown(err)
	} else {
		present := r.o.deps.Cache.FilterStillPresent(ctx, r.req.UserID, cachedIDs, listed)
		if len(present) > 0 {
			got, err := r.o.deps.Cache.Get(ctx, r.req.UserID, present, r.version)
			if err != nil {
				r.markCacheDown(err)
			} else {
				entries = got
			}
		}
	}

	toFetch := make([]string, 0, len(listed))
	stale := make([]models.CanonicalMessage, 0)
	cached := make([]models.PipelineMessage, 0)
	for _, id := range listed {
		entry, ok := entries[id]
		switch {
		case !ok:
			toFetch = append(toFetch, id)
		case entry.Analysis == nil:
			stale = append(stale, entry.Message)
		default:
			r.stats.CacheHits++
			if !r.presenter.keep(*entry.Analysis) {
				r.stats.FilteredOut++
				continue
			}
			cached = append(cached, r.presenter.present(entry.Message, *entry.Analysis, true))
		}
	}
	r.stats.CacheMisses = len(toFetch)
	r.stats.Reanalyzed = len(stale)
	r.messages = append(r.messages, cached...)
	span.LogKV("listed", len(listed), "hits", r.stats.CacheHits, "misses", len(toFetch), "stale", len(stale))

	r.send(models.PipelineEvent{Type: enum.EventCached, State: r.state, Messages: cached})
	return toFetch, stale, nil
}

// fetchAndAnalyze runs the provider fetch one batch ahead of parsing and analysis.
func (r *run) fetchAndAnalyze(ctx context.Context, ids []string) error {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan []models.RawMessage, 1)
	fetchErr := make(chan error, 1)
	go func() {
		defer close(batches)
		fetchErr <- r.o.deps.Fetcher.FetchBatches(fetchCtx, r.req.CredentialRef, ids, r.req.BatchSize, func(batch []models.RawMessage) error {
			select {
			case batches <- batch:
				return nil
			case <-fetchCtx.Done():
				return fetchCtx.Err()
			}
		})
	}()

	r.transition(enum.StateFetching)
	for batch := range batches {
		if ctx.Err() != nil {
			break
		}
		r.stats.FetchBatches++
		r.stats.Fetched += len(batch)

		r.transition(enum.StateParsing)
		parsed := r.parse(ctx, batch)
		if len(parsed) > 0 {
			r.transition(enum.StateAnalyzing)
			entries := r.analyze(ctx, parsed)
			r.transition(enum.StateFiltering)
			r.store(ctx, entries)
		}
		r.transition(enum.StateFetching)
	}

	cancel()
	for range batches {
	}
	err := <-fetchErr

	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, "pipeline cancelled")
	}
	if err != nil {
		r.errs.Add(enum.StageFetch, "", err)
		return err
	}
	return nil
}

func (r *run) parse(ctx context.Context, batch []models.RawMessage) []models.CanonicalMessage {
	parsed := make([]models.CanonicalMessage, 0, len(batch))
	for _, raw := range batch {
		msg, err := r.o.deps.Parser.ExtractMetadata(ctx, raw)
		if err != nil {
			r.stats.ParseErrors++
			r.errs.Add(enum.StageParse, raw.ID, err)
			continue
		}
		parsed = append(parsed, msg)
	}
	r.stats.Parsed += len(parsed)
	return parsed
}

// analyze runs both analyzers over msgs, emits every finished chunk and returns the cache entries to
// write. Fallback results are not cached so the next request retries them without refetching.
func (r *run) analyze(ctx context.Context, msgs []models.CanonicalMessage) []models.CacheEntry {
	texts := make([]string, len(msgs))
	byID := make(map[string]models.CanonicalMessage, len(msgs))
	for i, m := range msgs {
		texts[i] = m.AnalysisText()
		byID[m.ID] = m
	}

	insights, err := r.o.deps.Linguistic.AnalyzeBatch(ctx, texts)
	if err != nil {
		r.errs.Add(enum.StageAnalyze, "", err)
		r.o.log.Warnf("Linguistic analysis failed for %d messages, continuing without insights: %v", len(msgs), err)
		insights = nil
	}

	inputs := make([]models.AnalysisInput, len(msgs))
	for i, m := range msgs {
		inputs[i] = models.AnalysisInput{Message: m}
		if i < len(insights) {
			insight := insights[i]
			inputs[i].Insight = &insight
		}
	}

	batch := r.o.deps.Semantic.AnalyzeChunks(ctx, inputs, r.settings, func(chunk models.SemanticBatchResult) {
		out := make([]models.PipelineMessage, 0, len(chunk.Results))
		for _, analysis := range chunk.Results {
			if !r.presenter.keep(analysis) {
				r.stats.FilteredOut++
				continue
			}
			out = append(out, r.presenter.present(byID[analysis.MessageID], analysis, false))
		}
		r.messages = append(r.messages, out...)
		if len(out) > 0 {
			r.send(models.PipelineEvent{Type: enum.EventMessages, State: enum.StateAnalyzing, Messages: out, Errors: chunk.Errors})
		}
	})
	r.errs.Append(batch.Errors...)
	r.stats.AnalysisChunks += batch.Chunks
	r.stats.Usage = r.stats.Usage.Add(batch.Usage)

	entries := make([]models.CacheEntry, len(msgs))
	for i, analysis := range batch.Results {
		entry := models.CacheEntry{Message: msgs[i], SettingsVersion: r.version}
		if analysis.Fallback {
			r.stats.FallbackCount++
		} else {
			r.stats.Analyzed++
			analysis := analysis
			entry.Analysis = &analysis
		}
		entries[i] = entry
	}
	return entries
}

func (r *run) store(ctx context.Context, entries []models.CacheEntry) {
	ttl := r.settings.CacheTTL()
	if len(entries) == 0 || ttl <= 0 || r.cacheDown {
		return
	}
	if err := r.o.deps.Cache.Put(ctx, r.req.UserID, entries, ttl); err != nil {
		r.markCacheDown(err)
	}
}

// markCacheDown records the first cache failure; the rest of the run treats the cache as empty.
func (r *run) markCacheDown(err error) {
	if r.cacheDown {
		return
	}
	r.cacheDown = true
	r.stats.CacheUnavailable = true
	r.errs.Add(enum.StageCache, "", err)
	r.o.log.Warnf("Result cache unavailable for request %s, continuing uncached: %v", r.req.RequestID, err)
}

func (r *run) transition(next enum.PipelineState) {
	if !r.state.CanTransitionTo(next) {
		r.o.log.Warnf("Unexpected pipeline transition %s -> %s", r.state, next)
	}
	r.state = next
	r.send(models.PipelineEvent{Type: enum.EventState, State: next})
}

func (r *run) send(event models.PipelineEvent) {
	if r.emit == nil {
		return
	}
	event.ID = newEventID()
	r.emit(event)
}

// finish moves the run into its terminal state and builds the result. It runs once.
func (r *run) finish(err error) *models.PipelineResult {
	if r.result != nil {
		return r.result
	}
	final := enum.StateDone
	if err != nil {
		final = enum.StateFailed
	}
	r.transition(final)

	r.stats.State = final
	r.stats.FinishedAt = r.o.now()
	r.stats.DurationMs = r.stats.FinishedAt.Sub(r.stats.StartedAt).Milliseconds()
	r.stats.Returned = len(r.messages)
	r.stats.ErrorCount = r.errs.Len()

	r.result = &models.PipelineResult{
		RequestID: r.req.RequestID,
		Messages:  r.messages,
		Stats:     r.stats,
		Errors:    r.errs.Items(),
	}
	if err != nil {
		r.o.log.Warnf("Pipeline %s failed in %dms (%s): %v", r.req.RequestID, r.stats.DurationMs, apperrors.Kind(err), err)
	} else {
		r.o.log.Infof("Pipeline %s done in %dms: %d listed, %d cached, %d fetched, %d returned", r.req.RequestID,
			r.stats.DurationMs, r.stats.Listed, r.stats.CacheHits, r.stats.Fetched, r.stats.Returned)
	}
	r.recordActivity()
	return r.result
}

// recordActivity writes the activity log without holding up the caller.
func (r *run) recordActivity() {
	activity := r.o.deps.Activity
	if activity == nil || r.req.UserID == "" {
		return
	}
	entry := models.ActivityLog{
		UserID:       r.req.UserID,
		RequestID:    r.req.RequestID,
		MessageCount: len(r.messages),
		State:        string(r.stats.State),
		Stats:        models.ToJSONMap(r.stats),
		Timestamp:    r.stats.FinishedAt,
	}
	timeout := r.o.cfg.ActivityTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		defer tracing.RecoverAndLogToJaeger(r.o.log)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		activity.Record(ctx, entry)
	}()
}
