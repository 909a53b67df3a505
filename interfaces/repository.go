package interfaces

import (
	"context"
	"time"

	"github.com/asergian/beacon-sub001/internal/models"
)

type UserSettingsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserSettings, error)
	Save(ctx context.Context, settings *models.UserSettings) error
}

type ActivityLogRepository interface {
	Create(ctx context.Context, activity *models.ActivityLog) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.ActivityLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
