package provider

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/dto"
	"github.com/asergian/beacon-sub001/interfaces"
	"github.com/asergian/beacon-sub001/internal/enum"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/tracing"
	"github.com/asergian/beacon-sub001/services/worker"
)

type fetchClient struct {
	fetchCfg      *config.FetchConfig
	quotaCfg      *config.QuotaConfig
	workerTimeout time.Duration
	quota         interfaces.QuotaGovernor
	runner        interfaces.WorkerRunner
	log           logger.Logger
	sleep         func(ctx context.Context, d time.Duration) error
	jitter        func() float64
}

type Option func(*fetchClient)

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *fetchClient) {
		c.sleep = sleep
	}
}

func WithJitter(jitter func() float64) Option {
	return func(c *fetchClient) {
		c.jitter = jitter
	}
}

func NewFetchClient(cfg *config.Config, quota interfaces.QuotaGovernor, runner interfaces.WorkerRunner, log logger.Logger, opts ...Option) interfaces.ProviderFetchClient {
	c := &fetchClient{
		fetchCfg:      cfg.FetchConfig,
		quotaCfg:      cfg.QuotaConfig,
		workerTimeout: cfg.WorkerConfig.Timeout,
		quota:         quota,
		runner:        runner,
		log:           log,
		sleep:         sleepContext,
		jitter:        defaultJitter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// operation carries the per-call state of one list or fetch. The adaptive batch size lives here and is
// discarded with it.
type operation struct {
	credential         string
	batchSize          int
	consecutiveDenials int
	quotaWaits         int
	attempts           int
}

func (c *fetchClient) Fetch(ctx context.Context, credentialRef, query string, since time.Time, maxResults int) ([]models.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FetchClient.Fetch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagCredential(span, credentialRef)

	ids, err := c.ListMessageIDs(ctx, credentialRef, query, since, maxResults)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return c.FetchMessages(ctx, credentialRef, ids)
}

func (c *fetchClient) ListMessageIDs(ctx context.Context, credentialRef, query string, since time.Time, maxResults int) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FetchClient.ListMessageIDs")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagCredential(span, credentialRef)
	span.LogKV("query", query, "since", since.Format(time.RFC3339), "maxResults", maxResults)

	if maxResults <= 0 {
		return []string{}, nil
	}
	pageSize := c.fetchCfg.ListPageSize
	if pageSize <= 0 || pageSize > maxResults {
		pageSize = maxResults
	}
	pages := (maxResults + pageSize - 1) / pageSize
	args := dto.ProviderListArgs{
		CredentialRef: credentialRef,
		Query:         query,
		Since:         since,
		MaxResults:    maxResults,
		PageSize:      pageSize,
	}

	op := &operation{credential: credentialRef, batchSize: 1}
	result, _, err := c.dispatch(ctx, op, enum.WorkerActionProviderList,
		func(int) any { return args },
		func(int) int { return c.costWithinCeiling(c.quotaCfg.ListCost * pages) },
	)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	out, err := worker.DecodeResult[dto.ProviderListResult](result)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, apperrors.NewFetchFailed(op.attempts, err)
	}
	if len(out.IDs) > maxResults {
		out.IDs = out.IDs[:maxResults]
	}
	span.LogKV("result.count", len(out.IDs))
	return out.IDs, nil
}

func (c *fetchClient) FetchMessages(ctx context.Context, credentialRef string, ids []string) ([]models.RawMessage, error) {
	messages := make([]models.RawMessage, 0, len(ids))
	err := c.FetchBatches(ctx, credentialRef, ids, 0, func(batch []models.RawMessage) error {
		messages = append(messages, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// FetchBatches fetches ids in consecutive batches and hands each one to fn before requesting the next.
// A batchSize of 0 uses the configured default.
func (c *fetchClient) FetchBatches(ctx context.Context, credentialRef string, ids []string, batchSize int, fn func(batch []models.RawMessage) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "FetchClient.FetchBatches")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagCredential(span, credentialRef)
	span.LogKV("ids.count", len(ids))

	op := &operation{credential: credentialRef, batchSize: c.initialBatchSize(batchSize)}
	for offset := 0; offset < len(ids); {
		if err := ctx.Err(); err != nil {
			return err
		}

		remaining := ids[offset:]
		result, size, err := c.dispatch(ctx, op, enum.WorkerActionProviderFetch,
			func(size int) any {
				return dto.ProviderFetchArgs{CredentialRef: credentialRef, IDs: remaining[:min(size, len(remaining))]}
			},
			func(size int) int { return max(1, c.quotaCfg.MessageCost*min(size, len(remaining))) },
		)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		out, err := worker.DecodeResult[dto.ProviderFetchResult](result)
		if err != nil {
			tracing.TraceErr(span, err)
			return apperrors.NewFetchFailed(op.attempts, err)
		}

		offset += min(size, len(remaining))
		if err := fn(out.Messages); err != nil {
			return err
		}
	}
	span.LogKV("result.attempts", op.attempts, "result.batchSize", op.batchSize)
	return nil
}

// dispatch runs one sub-operation: permit, worker round trip, backoff on retriable failures. It
// returns the batch size the successful attempt used.
func (c *fetchClient) dispatch(ctx context.Context, op *operation, action enum.WorkerAction, args func(size int) any, cost func(size int) int) (*models.WorkerResult, int, error) {
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		permit, err := c.acquire(ctx, op, cost)
		if err != nil {
			return nil, 0, err
		}

		size := op.batchSize
		task, err := worker.NewTask(ctx, action, args(size))
		if err != nil {
			c.quota.Release(permit)
			return nil, 0, apperrors.NewFetchFailed(op.attempts, err)
		}

		op.attempts++
		result, err := c.runner.Run(ctx, task, c.workerTimeout)
		c.quota.Release(permit)
		if err == nil {
			return result, size, nil
		}

		if !apperrors.IsRetriable(err) || retry >= c.fetchCfg.MaxRetries {
			c.log.Errorf("Provider %s for %s failed after %d attempt(s): %v", action, op.credential, op.attempts, err)
			return nil, 0, apperrors.NewFetchFailed(op.attempts, err)
		}

		delay := backoffDelay(retry, c.fetchCfg.BackoffBase, c.fetchCfg.BackoffMax, c.jitter)
		c.log.Warnf("Provider %s for %s failed (%s), retrying in %s: %v", action, op.credential, apperrors.Kind(err), delay, err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, 0, err
		}
	}
}

// acquire waits for a permit. Two denials in a row halve the batch size.
func (c *fetchClient) acquire(ctx context.Context, op *operation, cost func(size int) int) (*models.Permit, error) {
	for {
		permit, err := c.quota.TryAcquire(op.credential, cost(op.batchSize))
		if err == nil {
			op.consecutiveDenials = 0
			return permit, nil
		}

		var quotaErr *apperrors.QuotaExceededError
		if !errors.As(err, &quotaErr) {
			return nil, apperrors.NewFetchFailed(op.attempts, err)
		}

		op.quotaWaits++
		op.consecutiveDenials++
		if op.quotaWaits > c.fetchCfg.MaxQuotaWaits {
			return nil, apperrors.NewFetchFailed(op.attempts, errors.Wrapf(err, "gave up after %d quota waits", op.quotaWaits-1))
		}
		if c.fetchCfg.MaxQuotaWait > 0 && quotaErr.RetryAfter > c.fetchCfg.MaxQuotaWait {
			return nil, apperrors.NewFetchFailed(op.attempts, err)
		}

		if op.consecutiveDenials >= 2 && op.batchSize > 1 {
			op.batchSize = max(1, op.batchSize/2)
			op.consecutiveDenials = 0
			c.log.Infof("Quota pressure on %s, batch size reduced to %d", op.credential, op.batchSize)
		}

		if err := c.sleep(ctx, quotaErr.RetryAfter); err != nil {
			return nil, err
		}
	}
}

func (c *fetchClient) initialBatchSize(requested int) int {
	size := requested
	if size <= 0 {
		size = c.fetchCfg.BatchSize
	}
	if size <= 0 {
		size = 1
	}
	if c.quotaCfg.MessageCost > 0 {
		size = min(size, max(1, c.quotaCfg.WindowCeiling/c.quotaCfg.MessageCost))
	}
	return size
}

func (c *fetchClient) costWithinCeiling(cost int) int {
	return max(1, min(cost, c.quotaCfg.WindowCeiling, c.quotaCfg.DailyCeiling))
}
