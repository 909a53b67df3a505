package cache

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/internal/utils"
)

type resultCache struct {
	cfg     *config.CacheConfig
	backend interfaces.CacheBackend
	log     logger.Logger
	now     func() time.Time
}

type Option func(*resultCache)

func WithClock(now func() time.Time) Option {
	return func(c *resultCache) {
		c.now = now
	}
}

func NewResultCache(cfg *config.CacheConfig, backend interfaces.CacheBackend, log logger.Logger, opts ...Option) interfaces.ResultCache {
	c := &resultCache{cfg: cfg, backend: backend, log: log, now: utils.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *resultCache) entryNamespace() string {
	return c.cfg.Namespace + ":entry"
}

func (c *resultCache) indexNamespace() string {
	return c.cfg.Namespace + ":index"
}

func entryKey(userID, messageID string) string {
	return userID + ":" + messageID
}

func (c *resultCache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.OperationTimeout)
}

func unavailable(err error, op string) error {
	return errors.Wrapf(apperrors.ErrCacheUnavailable, "%s: %v", op, err)
}

// Get returns the live entries among ids. Entries analyzed under another settings version come back
// without their analysis so the message is re-analyzed but not re-fetched.
func (c *resultCache) Get(ctx context.Context, userID string, ids []string, settingsVersion string) (map[string]models.CacheEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ResultCache.Get")
	defer span.Finish()
	tracing.SetDefaultCacheSpanTags(ctx, span)
	span.LogKV("ids.count", len(ids), "settingsVersion", settingsVersion)

	out := make(map[string]models.CacheEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryKey(userID, id)
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	blobs, err := c.backend.GetMany(opCtx, c.entryNamespace(), keys)
	if err != nil {
		err = unavailable(err, "get entries")
		tracing.TraceErr(span, err)
		return map[string]models.CacheEntry{}, err
	}

	now := c.now()
	for i, id := range ids {
		blob, ok := blobs[keys[i]]
		if !ok {
			continue
		}
		var entry models.CacheEntry
		if err := json.Unmarshal(blob, &entry); err != nil {
			c.log.Warnf("Dropping undecodable cache entry %s: %v", keys[i], err)
			continue
		}
		if entry.Expired(now) {
			continue
		}
		if entry.Analysis != nil && entry.SettingsVersion != settingsVersion {
			entry.Analysis = nil
		}
		out[id] = entry
	}

	span.LogKV("result.hits", len(out))
	return out, nil
}

// Put upserts entries with a ttl fixed at write time. A non-positive ttl disables caching.
func (c *resultCache) Put(ctx context.Context, userID string, entries []models.CacheEntry, ttl time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ResultCache.Put")
	defer span.Finish()
	tracing.SetDefaultCacheSpanTags(ctx, span)
	span.LogKV("entries.count", len(entries), "ttl", ttl.String())

	if len(entries) == 0 || ttl <= 0 {
		return nil
	}

	now := c.now()
	blobs := make(map[string][]byte, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry.UserID = userID
		entry.StoredAt = now
		entry.ExpiresAt = now.Add(ttl)
		if entry.Analysis != nil && entry.SettingsVersion == "" {
			entry.SettingsVersion = entry.Analysis.SettingsVersion
		}

		blob, err := json.Marshal(entry)
		if err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrapf(err, "encode cache entry %s", entry.Message.ID)
		}
		blobs[entryKey(userID, entry.Message.ID)] = blob
		ids = append(ids, entry.Message.ID)
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	if err := c.backend.PutMany(opCtx, c.entryNamespace(), blobs, ttl); err != nil {
		err = unavailable(err, "put entries")
		tracing.TraceErr(span, err)
		return err
	}

	// the index maps each cached id to how many listings in a row it was absent from
	if err := c.backend.SetCounters(opCtx, c.indexNamespace(), userID, ids, 0, c.cfg.IndexTTL); err != nil {
		err = unavailable(err, "update index")
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *resultCache) CachedIDs(ctx context.Context, userID string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ResultCache.CachedIDs")
	defer span.Finish()
	tracing.SetDefaultCacheSpanTags(ctx, span)

	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	misses, err := c.backend.GetCounters(opCtx, c.indexNamespace(), userID)
	if err != nil {
		err = unavailable(err, "load index")
		tracing.TraceErr(span, err)
		return []string{}, err
	}

	ids := make([]string, 0, len(misses))
	for id := range misses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// FilterStillPresent keeps the cached ids that the provider still lists, in cachedIDs order. Absent ids
// are not returned; one absent from MissEvictionThreshold listings in a row is purged.
func (c *resultCache) FilterStillPresent(ctx context.Context, userID string, cachedIDs, currentIDs []string) []string {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ResultCache.FilterStillPresent")
	defer span.Finish()
	tracing.SetDefaultCacheSpanTags(ctx, span)

	current := make(map[string]struct{}, len(currentIDs))
	for _, id := range currentIDs {
		current[id] = struct{}{}
	}

	present := make([]string, 0, len(cachedIDs))
	var absent []string
	for _, id := range cachedIDs {
		if _, ok := current[id]; ok {
			present = append(present, id)
		} else {
			absent = append(absent, id)
		}
	}
	span.LogKV("present", len(present), "absent", len(absent))

	c.recordListing(ctx, userID, present, absent)
	return present
}

// recordListing updates miss counters. Failures only delay eviction, so they are logged and dropped.
func (c *resultCache) recordListing(ctx context.Context, userID string, present, absent []string) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	misses, err := c.backend.GetCounters(opCtx, c.indexNamespace(), userID)
	if err != nil {
		c.log.Warnf("Skipping miss accounting for %s: %v", userID, err)
		return
	}

	var seen []string
	for _, id := range present {
		if n, ok := misses[id]; ok && n != 0 {
			seen = append(seen, id)
		}
	}
	if err := c.backend.SetCounters(opCtx, c.indexNamespace(), userID, seen, 0, c.cfg.IndexTTL); err != nil {
		c.log.Warnf("Failed to reset miss counters for %s: %v", userID, err)
	}

	var missing []string
	for _, id := range absent {
		if _, ok := misses[id]; ok {
			missing = append(missing, id)
		}
	}
	counts, err := c.backend.IncrCounters(opCtx, c.indexNamespace(), userID, missing, 1)
	if err != nil {
		c.log.Warnf("Failed to count misses for %s: %v", userID, err)
		return
	}

	var evict []string
	for _, id := range missing {
		if c.cfg.MissEvictionThreshold > 0 && counts[id] >= int64(c.cfg.MissEvictionThreshold) {
			evict = append(evict, id)
		}
	}
	if len(evict) == 0 {
		return
	}

	keys := make([]string, len(evict))
	for i, id := range evict {
		keys[i] = entryKey(userID, id)
	}
	if err := c.backend.Delete(opCtx, c.entryNamespace(), keys...); err != nil {
		c.log.Warnf("Failed to evict %d vanished entries for %s: %v", len(keys), userID, err)
		return
	}
	if err := c.backend.DeleteCounters(opCtx, c.indexNamespace(), userID, evict...); err != nil {
		c.log.Warnf("Failed to drop evicted ids from the index for %s: %v", userID, err)
	}
	c.log.Debugf("Evicted %d vanished entries for %s", len(keys), userID)
}
