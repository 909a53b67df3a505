package linguistic

import (
	"context"
	"encoding/json"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/services/worker"
)

type linguisticAnalyzer struct {
	cfg    *config.LinguisticConfig
	runner interfaces.WorkerRunner
	log    logger.Logger
}

// NewLinguisticAnalyzer analyzes in the calling process, or in a worker child when the mode is
// "worker" and a runner is supplied.
func NewLinguisticAnalyzer(cfg *config.LinguisticConfig, runner interfaces.WorkerRunner, log logger.Logger) interfaces.LinguisticAnalyzer {
	return &linguisticAnalyzer{cfg: cfg, runner: runner, log: log}
}

func (a *linguisticAnalyzer) AnalyzeBatch(ctx context.Context, texts []string) ([]models.LinguisticInsight, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LinguisticAnalyzer.AnalyzeBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("texts.count", len(texts), "mode", a.cfg.Mode)

	if len(texts) == 0 {
		return []models.LinguisticInsight{}, nil
	}
	if a.cfg.Mode != string(enum.LinguisticWorker) || a.runner == nil {
		return analyzeAll(texts, a.cfg.MaxTextRunes, a.cfg.MaxKeywords), nil
	}

	task, err := worker.NewTask(ctx, enum.WorkerActionLinguisticBatch, dto.LinguisticArgs{
		Texts:        texts,
		MaxTextRunes: a.cfg.MaxTextRunes,
		MaxKeywords:  a.cfg.MaxKeywords,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result, err := a.runner.Run(ctx, task, a.cfg.WorkerTimeout)
	if err != nil {
		tracing.TraceErr(span, err)
		a.log.Warnf("Linguistic worker failed (%s): %v", apperrors.Kind(err), err)
		return nil, err
	}

	out, err := worker.DecodeResult[dto.LinguisticResult](result)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(out.Insights) != len(texts) {
		err = errors.Wrapf(apperrors.ErrWorkerProtocol, "linguistic worker returned %d insights for %d texts", len(out.Insights), len(texts))
		tracing.TraceErr(span, err)
		return nil, err
	}
	return out.Insights, nil
}

func analyzeAll(texts []string, maxRunes, maxKeywords int) []models.LinguisticInsight {
	insights := make([]models.LinguisticInsight, len(texts))
	for i, text := range texts {
		insights[i] = Analyze(text, maxRunes, maxKeywords)
	}
	return insights
}

// RegisterHandlers exposes the analyzer as a worker action.
func RegisterHandlers(registry *worker.Registry) {
	registry.Register(enum.WorkerActionLinguisticBatch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args dto.LinguisticArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, apperrors.NewTaskError(errors.Wrap(err, "decode linguistic args"), false)
		}
		return dto.LinguisticResult{Insights: analyzeAll(args.Texts, args.MaxTextRunes, args.MaxKeywords)}, nil
	})
}
