package interfaces

import (
	"context"

	"github.com/asergian/beacon-sub001/internal/models"
)

type PipelineOrchestrator interface {
	Run(ctx context.Context, request models.PipelineRequest) (*models.PipelineResult, error)
	Stream(ctx context.Context, request models.PipelineRequest) <-chan models.PipelineEvent
}

type SettingsProvider interface {
	GetSnapshot(ctx context.Context, userID string) (*models.SettingsSnapshot, error)
}

type ActivityLogger interface {
	Record(ctx context.Context, activity models.ActivityLog)
}
