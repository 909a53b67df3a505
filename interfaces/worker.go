package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/internal/models"
)

// WorkerRunner executes one task in isolation and guarantees the executor is gone before returning.
type WorkerRunner interface {
	Run(ctx context.Context, task dto.WorkerTask, timeout time.Duration) (*models.WorkerResult, error)
}

// WorkerHandler serves one action inside a worker.
type WorkerHandler func(ctx context.Context, args json.RawMessage) (any, error)
