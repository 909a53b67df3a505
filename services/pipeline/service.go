package pipeline

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

// Dependencies are the stages the orchestrator drives. Activity may be nil.
type Dependencies struct {
	Settings   interfaces.SettingsProvider
	Fetcher    interfaces.ProviderFetchClient
	Parser     interfaces.ContentParser
	Cache      interfaces.ResultCache
	Linguistic interfaces.LinguisticAnalyzer
	Semantic   interfaces.SemanticAnalyzer
	Activity   interfaces.ActivityLogger
}

type orchestrator struct {
	cfg  *config.PipelineConfig
	deps Dependencies
	log  logger.Logger
	now  func() time.Time
}

type Option func(*orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *orchestrator) {
		o.now = now
	}
}

func NewPipelineOrchestrator(cfg *config.PipelineConfig, deps Dependencies, log logger.Logger, opts ...Option) interfaces.PipelineOrchestrator {
	o := &orchestrator{cfg: cfg, deps: deps, log: log, now: utils.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the request to completion. On a terminal failure the partial result is returned together
// with the error.
func (o *orchestrator) Run(ctx context.Context, request models.PipelineRequest) (*models.PipelineResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PipelineOrchestrator.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, request.UserID)

	result, err := o.safeExecute(ctx, newRun(o, request, nil))
	if err != nil {
		tracing.TraceErr(span, err)
	}
	span.LogKV("result.state", result.Stats.State, "result.messages", len(result.Messages), "result.errors", len(result.Errors))
	return result, err
}

// Stream executes the request and reports progress on the returned channel: state transitions, one
// cached event, one messages event per analyzed chunk and finally exactly one stats event, after which the
// channel is closed. Cancelling ctx stops new work; the stats event is still attempted. A consumer that
// stops reading for EventSendTimeout is treated as gone: the run is cancelled and later events are
// dropped.
func (o *orchestrator) Stream(ctx context.Context, request models.PipelineRequest) <-chan models.PipelineEvent {
	events := make(chan models.PipelineEvent, max(1, o.cfg.EventBuffer))

	go func() {
		defer close(events)

		span, ctx := opentracing.StartSpanFromContext(ctx, "PipelineOrchestrator.Stream")
		defer span.Finish()
		tracing.SetDefaultServiceSpanTags(ctx, span)
		tracing.TagEntity(span, request.UserID)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sendTimeout := o.cfg.EventSendTimeout
		if sendTimeout <= 0 {
			sendTimeout = 30 * time.Second
		}
		stalled := false
		r := newRun(o, request, func(event models.PipelineEvent) {
			if stalled {
				return
			}
			timer := time.NewTimer(sendTimeout)
			defer timer.Stop()
			select {
			case events <- event:
			case <-ctx.Done():
			case <-timer.C:
				stalled = true
				o.log.Warnf("Consumer of request %s stopped reading, cancelling run", request.RequestID)
				cancel()
			}
		})
		result, err := o.safeExecute(ctx, r)
		if err != nil {
			tracing.TraceErr(span, err)
		}

		terminal := statsEvent(result, err)
		if stalled {
			select {
			case events <- terminal:
			default:
				o.log.Warnf("Dropped terminal stats event for request %s: consumer not reading", result.RequestID)
			}
			return
		}
		timeout := o.cfg.TerminalTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case events <- terminal:
		case <-timer.C:
			o.log.Warnf("Dropped terminal stats event for request %s: consumer not reading", result.RequestID)
		}
	}()

	return events
}

func (o *orchestrator) safeExecute(ctx context.Context, r *run) (result *models.PipelineResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			o.log.Errorf("Recovered from pipeline panic: %v\nStack trace:\n%s", p, string(debug.Stack()))
			err = errors.Errorf("pipeline panic: %v", p)
			result = r.finish(err)
		}
	}()
	return r.execute(ctx)
}

func statsEvent(result *models.PipelineResult, err error) models.PipelineEvent {
	stats := result.Stats
	event := models.PipelineEvent{
		ID:     newEventID(),
		Type:   enum.EventStats,
		State:  stats.State,
		Stats:  &stats,
		Errors: result.Errors,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

func newEventID() string {
	return utils.GenerateNanoIDWithPrefix("evt", 12)
}
