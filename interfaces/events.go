package interfaces

import (
	"context"

	"github.com/asergian/beacon-sub001/dto"
)

type EventPublisher interface {
	PublishPipelineCompleted(ctx context.Context, event dto.PipelineCompleted) error
	Close() error
}
