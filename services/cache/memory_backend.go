package cache

import (
	"context"
	"sync"
	"time"

	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

type memoryCounters struct {
	values    map[string]int64
	expiresAt time.Time
}

type memoryBackend struct {
	mu       sync.Mutex
	items    map[string]memoryItem
	counters map[string]*memoryCounters
	now      func() time.Time
}

// NewMemoryBackend keeps blobs in process memory. Used when no Redis URL is configured and in tests.
func NewMemoryBackend(now func() time.Time) interfaces.CacheBackend {
	if now == nil {
		now = utils.Now
	}
	return &memoryBackend{items: make(map[string]memoryItem), counters: make(map[string]*memoryCounters), now: now}
}

func (b *memoryBackend) lookup(key string) ([]byte, bool) {
	item, ok := b.items[key]
	if !ok {
		return nil, false
	}
	if !item.expiresAt.IsZero() && !b.now().Before(item.expiresAt) {
		delete(b.items, key)
		return nil, false
	}
	return item.value, true
}

func (b *memoryBackend) store(key string, value []byte, ttl time.Duration) {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = b.now().Add(ttl)
	}
	b.items[key] = item
}

func (b *memoryBackend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, _ := b.lookup(redisKey(namespace, key))
	return value, nil
}

func (b *memoryBackend) GetMany(ctx context.Context, namespace string, keys []string) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := b.lookup(redisKey(namespace, key)); ok {
			out[key] = value
		}
	}
	return out, nil
}

func (b *memoryBackend) Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store(redisKey(namespace, key), value, ttl)
	return nil
}

func (b *memoryBackend) PutMany(ctx context.Context, namespace string, values map[string][]byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, value := range values {
		b.store(redisKey(namespace, key), value, ttl)
	}
	return nil
}

func (b *memoryBackend) Delete(ctx context.Context, namespace string, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		delete(b.items, redisKey(namespace, key))
	}
	return nil
}

// counterHash returns the live hash for key, creating it when create is set.
func (b *memoryBackend) counterHash(key string, create bool) *memoryCounters {
	hash, ok := b.counters[key]
	if ok && !hash.expiresAt.IsZero() && !b.now().Before(hash.expiresAt) {
		delete(b.counters, key)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		hash = &memoryCounters{values: make(map[string]int64)}
		b.counters[key] = hash
	}
	return hash
}

func (b *memoryBackend) SetCounters(ctx context.Context, namespace, key string, fields []string, value int64, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	hash := b.counterHash(redisKey(namespace, key), true)
	for _, field := range fields {
		hash.values[field] = value
	}
	if ttl > 0 {
		hash.expiresAt = b.now().Add(ttl)
	}
	return nil
}

func (b *memoryBackend) IncrCounters(ctx context.Context, namespace, key string, fields []string, delta int64) (map[string]int64, error) {
	out := make(map[string]int64, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	hash := b.counterHash(redisKey(namespace, key), true)
	for _, field := range fields {
		hash.values[field] += delta
		out[field] = hash.values[field]
	}
	return out, nil
}

func (b *memoryBackend) GetCounters(ctx context.Context, namespace, key string) (map[string]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int64)
	if hash := b.counterHash(redisKey(namespace, key), false); hash != nil {
		for field, value := range hash.values {
			out[field] = value
		}
	}
	return out, nil
}

func (b *memoryBackend) DeleteCounters(ctx context.Context, namespace, key string, fields ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	hash := b.counterHash(redisKey(namespace, key), false)
	if hash == nil {
		return nil
	}
	for _, field := range fields {
		delete(hash.values, field)
	}
	if len(hash.values) == 0 {
		delete(b.counters, redisKey(namespace, key))
	}
	return nil
}

func (b *memoryBackend) Ping(ctx context.Context) error {
	return nil
}
