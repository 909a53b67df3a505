package interfaces

import (
	"context"
	"time"

	"github.com/asergian/beacon-sub001/internal/models"
)

type ResultCache interface {
	Get(ctx context.Context, userID string, ids []string, settingsVersion string) (map[string]models.CacheEntry, error)
	Put(ctx context.Context, userID string, entries []models.CacheEntry, ttl time.Duration) error
	FilterStillPresent(ctx context.Context, userID string, cachedIDs, currentIDs []string) []string
	CachedIDs(ctx context.Context, userID string) ([]string, error)
}

// CacheBackend stores opaque blobs and per-key counter hashes. Get returns nil without error on a miss.
// Counter updates are atomic per field, so concurrent writers to one key never lose each other's fields.
type CacheBackend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	GetMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	PutMany(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace string, keys ...string) error
	SetCounters(ctx context.Context, namespace, key string, fields []string, value int64, ttl time.Duration) error
	IncrCounters(ctx context.Context, namespace, key string, fields []string, delta int64) (map[string]int64, error)
	GetCounters(ctx context.Context, namespace, key string) (map[string]int64, error)
	DeleteCounters(ctx context.Context, namespace, key string, fields ...string) error
	Ping(ctx context.Context) error
}
