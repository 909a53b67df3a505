package interfaces

import (
	"context"

	"github.com/asergian/beacon-sub001/internal/models"
)

type ContentParser interface {
	ExtractMetadata(ctx context.Context, raw models.RawMessage) (models.CanonicalMessage, error)
}
