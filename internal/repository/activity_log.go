package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
)

const defaultActivityListLimit = 50

type activityLogRepository struct {
	gormDb *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) interfaces.ActivityLogRepository {
	return &activityLogRepository{gormDb: db}
}

func (r *activityLogRepository) Create(ctx context.Context, activity *models.ActivityLog) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ActivityLogRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if activity == nil || activity.UserID == "" {
		err := ErrInvalidInput
		tracing.TraceErr(span, err)
		return err
	}

	if err := r.gormDb.WithContext(ctx).Create(activity).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create activity log")
	}
	tracing.TagEntity(span, activity.ID)
	return nil
}

func (r *activityLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.ActivityLog, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ActivityLogRepository.ListByUser")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogFields(tracingLog.String("userId", userID), tracingLog.Int("limit", limit))

	if limit <= 0 {
		limit = defaultActivityListLimit
	}

	var result []*models.ActivityLog
	err := r.gormDb.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&result).
		Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.count", len(result)))
	return result, nil
}

func (r *activityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ActivityLogRepository.DeleteOlderThan")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogFields(tracingLog.String("cutoff", cutoff.UTC().Format(time.RFC3339)))

	result := r.gormDb.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.ActivityLog{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}

	span.LogFields(tracingLog.Int64("result.deleted", result.RowsAffected))
	return result.RowsAffected, nil
}
