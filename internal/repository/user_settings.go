package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type userSettingsRepository struct {
	gormDb *gorm.DB
}

func NewUserSettingsRepository(db *gorm.DB) interfaces.UserSettingsRepository {
	return &userSettingsRepository{gormDb: db}
}

// GetByUserID returns nil without error when the user has no settings row.
func (r *userSettingsRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSettings, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UserSettingsRepository.GetByUserID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogFields(tracingLog.String("userId", userID))

	var result models.UserSettings
	err := r.gormDb.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&result).
		Error

	if err != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		span.LogFields(tracingLog.Bool("result.found", false))
		return nil, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Bool("result.found", true))
	return &result, nil
}

func (r *userSettingsRepository) Save(ctx context.Context, settings *models.UserSettings) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UserSettingsRepository.Save")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if settings == nil || settings.UserID == "" {
		err := ErrInvalidInput
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.String("userId", settings.UserID))

	now := utils.Now()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	err := r.gormDb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"ai_enabled", "model_type", "context_length", "summary_length", "custom_categories",
				"priority_threshold", "cache_duration_days", "timezone", "updated_at",
			}),
		}).
		Create(settings).
		Error
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to save user settings")
	}
	return nil
}
