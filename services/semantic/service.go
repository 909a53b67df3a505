package semantic

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type semanticAnalyzer struct {
	cfg    *config.SemanticConfig
	client interfaces.LLMClient
	log    logger.Logger
	now    func() time.Time
}

type Option func(*semanticAnalyzer)

func WithClock(now func() time.Time) Option {
	return func(a *semanticAnalyzer) {
		a.now = now
	}
}

func NewSemanticAnalyzer(cfg *config.SemanticConfig, client interfaces.LLMClient, log logger.Logger, opts ...Option) interfaces.SemanticAnalyzer {
	a := &semanticAnalyzer{cfg: cfg, client: client, log: log, now: utils.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *semanticAnalyzer) AnalyzeBatch(ctx context.Context, inputs []models.AnalysisInput, settings models.SettingsSnapshot) models.SemanticBatchResult {
	return a.AnalyzeChunks(ctx, inputs, settings, nil)
}

// AnalyzeChunks analyzes inputs in chunks on a fixed-width pool. onChunk, when set, receives every
// finished chunk; calls are serialized but arrive in completion order. The returned results follow input
// order and there is always exactly one result per input.
func (a *semanticAnalyzer) AnalyzeChunks(ctx context.Context, inputs []models.AnalysisInput, settings models.SettingsSnapshot, onChunk func(models.SemanticBatchResult)) models.SemanticBatchResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SemanticAnalyzer.AnalyzeChunks")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("inputs.count", len(inputs), "aiEnabled", settings.AIEnabled, "modelType", settings.ModelType)

	batch := models.SemanticBatchResult{
		Results: make([]models.AnalysisResult, len(inputs)),
		Errors:  []models.ItemError{},
	}
	if len(inputs) == 0 {
		return batch
	}

	version := settings.Version()
	categories := newCategorySet(settings.CustomCategories)
	chunks := utils.Chunk(inputs, a.cfg.ChunkSize)
	batch.Chunks = len(chunks)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(a.concurrency())

	offset := 0
	for _, chunk := range chunks {
		chunk, start := chunk, offset
		offset += len(chunk)
		g.Go(func() error {
			var out models.SemanticBatchResult
			if settings.AIEnabled && a.client != nil {
				out = a.analyzeChunk(ctx, chunk, settings, categories, version)
			} else {
				out = a.heuristicChunk(chunk, version)
			}

			mu.Lock()
			defer mu.Unlock()
			copy(batch.Results[start:], out.Results)
			batch.Usage = batch.Usage.Add(out.Usage)
			batch.Errors = append(batch.Errors, out.Errors...)
			if onChunk != nil {
				onChunk(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	fallbacks := 0
	for _, r := range batch.Results {
		if r.Fallback {
			fallbacks++
		}
	}
	span.LogKV("chunks", batch.Chunks, "fallbacks", fallbacks, "usage.prompt", batch.Usage.PromptTokens, "usage.completion", batch.Usage.CompletionTokens)
	if fallbacks > 0 {
		a.log.Warnf("Semantic analysis fell back for %d of %d messages", fallbacks, len(inputs))
	}
	return batch
}

func (a *semanticAnalyzer) concurrency() int {
	if a.cfg.Concurrency < 1 {
		return 1
	}
	return a.cfg.Concurrency
}

func (a *semanticAnalyzer) model(settings models.SettingsSnapshot) string {
	if enum.ModelType(settings.ModelType) == enum.ModelTypeAccurate {
		return a.cfg.ModelAccurate
	}
	return a.cfg.ModelFast
}

// analyzeChunk makes one LLM call for the chunk, plus one stricter retry when the answer is malformed.
// Any remaining failure turns into fallback results and item errors; nothing is returned as an error.
func (a *semanticAnalyzer) analyzeChunk(ctx context.Context, chunk []models.AnalysisInput, settings models.SettingsSnapshot, categories categorySet, version string) models.SemanticBatchResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SemanticAnalyzer.analyzeChunk")
	defer span.Finish()
	span.LogKV("chunk.size", len(chunk))

	out := models.SemanticBatchResult{Chunks: 1, Errors: []models.ItemError{}}
	if err := ctx.Err(); err != nil {
		return a.fallbackChunk(chunk, version, errors.Wrap(apperrors.ErrLLMCallFailed, err.Error()))
	}

	prompt := buildPrompt(chunk, a.cfg.MaxMessageRunes, settings.ContextLength)
	var usage models.CompletionUsage
	var parsed map[string]rawResult
	var invalid map[string]error
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var completion *models.Completion
		completion, err = a.complete(ctx, models.CompletionRequest{
			System:    buildSystemPrompt(categories.prompt(), settings.SummaryLength, attempt > 0),
			Prompt:    prompt,
			MaxTokens: a.cfg.MaxTokens,
			Model:     a.model(settings),
		})
		if err != nil {
			break
		}
		usage.PromptTokens += completion.Usage.PromptTokens
		usage.CompletionTokens += completion.Usage.CompletionTokens

		parsed, invalid, err = parseResponse(completion.Text)
		if err == nil {
			break
		}
		a.log.Warnf("Malformed LLM response for chunk of %d (attempt %d): %v", len(chunk), attempt+1, err)
	}

	if err != nil {
		tracing.TraceErr(span, err)
		out = a.fallbackChunk(chunk, version, err)
		a.applyUsage(&out, usage)
		return out
	}

	analyzedAt := a.now()
	out.Results = make([]models.AnalysisResult, len(chunk))
	for i, input := range chunk {
		raw, ok := parsed[input.Message.ID]
		if !ok {
			out.Results[i] = models.NewFallbackAnalysis(input, version, analyzedAt)
			if cause, bad := invalid[input.Message.ID]; bad {
				out.Errors = append(out.Errors, itemError(input.Message.ID, cause))
				continue
			}
			out.Errors = append(out.Errors, itemError(input.Message.ID,
				errors.Wrap(apperrors.ErrLLMMalformed, "no result for message")))
			continue
		}
		out.Results[i] = a.toResult(input, raw, categories, settings.SummaryLength, version, analyzedAt)
	}
	a.applyUsage(&out, usage)
	return out
}

func (a *semanticAnalyzer) complete(ctx context.Context, request models.CompletionRequest) (*models.Completion, error) {
	if a.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
	}
	completion, err := a.client.Complete(ctx, request)
	if err != nil {
		if !errors.Is(err, apperrors.ErrLLMCallFailed) {
			err = errors.Wrap(apperrors.ErrLLMCallFailed, err.Error())
		}
		return nil, err
	}
	return completion, nil
}

func (a *semanticAnalyzer) toResult(input models.AnalysisInput, raw rawResult, categories categorySet, summaryLength int, version string, analyzedAt time.Time) models.AnalysisResult {
	result := models.NewFallbackAnalysis(input, version, analyzedAt)
	result.Fallback = false
	result.Category = categories.coerce(raw.Category)
	result.Priority = raw.Priority
	result.ActionItems = toActionItems(raw.ActionItems)
	result.NeedsAction = raw.NeedsAction || len(result.ActionItems) > 0
	result.Summary = raw.Summary
	if summaryLength > 0 {
		result.Summary = utils.TruncateRunes(result.Summary, summaryLength)
	}
	return result
}

// heuristicChunk scores messages from the linguistic insight alone. Used when AI is disabled for the
// user.
func (a *semanticAnalyzer) heuristicChunk(chunk []models.AnalysisInput, version string) models.SemanticBatchResult {
	analyzedAt := a.now()
	out := models.SemanticBatchResult{
		Results: make([]models.AnalysisResult, len(chunk)),
		Errors:  []models.ItemError{},
		Chunks:  1,
	}
	for i, input := range chunk {
		result := models.NewFallbackAnalysis(input, version, analyzedAt)
		result.Fallback = false
		result.Priority = int(math.Round(result.UrgencyScore * 100))
		result.NeedsAction = result.UrgencyScore >= 0.5
		out.Results[i] = result
	}
	return out
}

func (a *semanticAnalyzer) fallbackChunk(chunk []models.AnalysisInput, version string, cause error) models.SemanticBatchResult {
	analyzedAt := a.now()
	out := models.SemanticBatchResult{
		Results: make([]models.AnalysisResult, len(chunk)),
		Errors:  make([]models.ItemError, 0, len(chunk)),
		Chunks:  1,
	}
	for i, input := range chunk {
		out.Results[i] = models.NewFallbackAnalysis(input, version, analyzedAt)
		out.Errors = append(out.Errors, itemError(input.Message.ID, cause))
	}
	return out
}

// applyUsage spreads the chunk's token usage over its messages and prices it.
func (a *semanticAnalyzer) applyUsage(out *models.SemanticBatchResult, usage models.CompletionUsage) {
	out.Usage = a.price(usage.PromptTokens, usage.CompletionTokens)
	n := len(out.Results)
	if n == 0 {
		return
	}
	for i := range out.Results {
		prompt := share(usage.PromptTokens, n, i)
		completion := share(usage.CompletionTokens, n, i)
		out.Results[i].Usage = a.price(prompt, completion)
	}
}

func (a *semanticAnalyzer) price(prompt, completion int) models.TokenUsage {
	return models.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          float64(prompt)/1000*a.cfg.PromptPricePer1K + float64(completion)/1000*a.cfg.CompletionPricePer1K,
	}
}

// share splits total over n parts; the first total%n parts get one extra token.
func share(total, n, i int) int {
	part := total / n
	if i < total%n {
		part++
	}
	return part
}

func itemError(messageID string, err error) models.ItemError {
	return models.ItemError{
		Kind:      apperrors.Kind(err),
		Stage:     enum.StageAnalyze,
		MessageID: messageID,
		Message:   err.Error(),
	}
}
