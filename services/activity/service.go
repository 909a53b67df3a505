package activity

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type activityLogger struct {
	repo      interfaces.ActivityLogRepository
	publisher interfaces.EventPublisher
	log       logger.Logger
}

// NewActivityLogger persists and publishes pipeline activity. Either sink may be nil. Failures are
// logged and never returned.
func NewActivityLogger(repo interfaces.ActivityLogRepository, publisher interfaces.EventPublisher, log logger.Logger) interfaces.ActivityLogger {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &activityLogger{repo: repo, publisher: publisher, log: log}
}

func (a *activityLogger) Record(ctx context.Context, activity models.ActivityLog) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ActivityLogger.Record")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if activity.ID == "" {
		activity.ID = utils.GenerateNanoIDWithPrefix("act", 16)
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = utils.Now()
	}
	tracing.TagEntity(span, activity.ID)

	if a.repo != nil {
		if err := a.repo.Create(ctx, &activity); err != nil {
			tracing.TraceErr(span, err)
			a.log.Errorf("Failed to store activity %s for user %s: %v", activity.ID, activity.UserID, err)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.PublishPipelineCompleted(ctx, toEvent(activity)); err != nil {
			tracing.TraceErr(span, err)
			a.log.Errorf("Failed to publish activity %s for user %s: %v", activity.ID, activity.UserID, err)
		}
	}
}

func toEvent(activity models.ActivityLog) dto.PipelineCompleted {
	return dto.PipelineCompleted{
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		RequestID:    activity.RequestID,
		MessageCount: activity.MessageCount,
		State:        activity.State,
		Stats:        activity.Stats,
		Timestamp:    activity.Timestamp.UTC().Format(time.RFC3339),
	}
}
