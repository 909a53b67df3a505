package interfaces

import (
	"context"
	"time"

	"github.com/asergian/beacon-sub001/internal/models"
)

type ProviderFetchClient interface {
	ListMessageIDs(ctx context.Context, credentialRef, query string, since time.Time, maxResults int) ([]string, error)
	FetchBatches(ctx context.Context, credentialRef string, ids []string, batchSize int, fn func(batch []models.RawMessage) error) error
	FetchMessages(ctx context.Context, credentialRef string, ids []string) ([]models.RawMessage, error)
	Fetch(ctx context.Context, credentialRef, query string, since time.Time, maxResults int) ([]models.RawMessage, error)
}

// MessageSource is a mailbox opened inside a worker child.
type MessageSource interface {
	ListMessageIDs(ctx context.Context, query string, since time.Time, maxResults, pageSize int) ([]string, error)
	GetMessages(ctx context.Context, ids []string) ([]models.RawMessage, error)
	Close() error
}
