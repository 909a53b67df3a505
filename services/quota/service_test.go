package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/config"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGovernor(windowCeiling, dailyCeiling int) (*quotaGovernor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	cfg := &config.QuotaConfig{
		Window:        100 * time.Second,
		WindowCeiling: windowCeiling,
		DailyCeiling:  dailyCeiling,
	}
	g := NewQuotaGovernor(cfg, logger.NewNopLogger(), WithClock(clock.Now)).(*quotaGovernor)
	return g, clock
}

func TestTryAcquire_CeilingPlusOneIsDenied(t *testing.T) {
	g, _ := newGovernor(10, 1000)

	for i := 0; i < 10; i++ {
		permit, err := g.TryAcquire("cred", 1)
		require.NoError(t, err)
		require.NotNil(t, permit)
	}

	permit, err := g.TryAcquire("cred", 1)
	assert.Nil(t, permit)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)

	var quotaErr *apperrors.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Greater(t, quotaErr.RetryAfter, time.Duration(0))
	assert.Equal(t, 100*time.Second, quotaErr.RetryAfter)
}

func TestTryAcquire_WindowRollsForward(t *testing.T) {
	g, clock := newGovernor(10, 1000)

	_, err := g.TryAcquire("cred", 6)
	require.NoError(t, err)
	clock.Advance(40 * time.Second)
	_, err = g.TryAcquire("cred", 4)
	require.NoError(t, err)

	_, err = g.TryAcquire("cred", 5)
	var quotaErr *apperrors.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	// The first reservation frees enough capacity 60s from now.
	assert.Equal(t, 60*time.Second, quotaErr.RetryAfter)

	clock.Advance(60 * time.Second)
	_, err = g.TryAcquire("cred", 5)
	require.NoError(t, err)

	snapshot := g.Snapshot("cred")
	assert.Equal(t, 9, snapshot.WindowUsed)
	assert.Equal(t, 15, snapshot.DayUsed)
}

func TestTryAcquire_DailyCeilingWaitsForMidnight(t *testing.T) {
	g, clock := newGovernor(100, 20)

	_, err := g.TryAcquire("cred", 20)
	require.NoError(t, err)
	clock.Advance(200 * time.Second)

	_, err = g.TryAcquire("cred", 1)
	var quotaErr *apperrors.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	midnight := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight.Sub(clock.Now()), quotaErr.RetryAfter)

	clock.Advance(quotaErr.RetryAfter)
	_, err = g.TryAcquire("cred", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Snapshot("cred").DayUsed)
}

func TestTryAcquire_CredentialsAreIndependent(t *testing.T) {
	g, _ := newGovernor(5, 100)

	_, err := g.TryAcquire("a", 5)
	require.NoError(t, err)
	_, err = g.TryAcquire("b", 5)
	require.NoError(t, err)
	_, err = g.TryAcquire("a", 1)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
}

func TestTryAcquire_InvalidCost(t *testing.T) {
	g, _ := newGovernor(5, 100)

	_, err := g.TryAcquire("cred", 6)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuotaCost)
	_, err = g.TryAcquire("cred", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuotaCost)
	assert.Equal(t, 0, g.Snapshot("cred").WindowUsed)
}

func TestTryAcquire_ConcurrentCallersNeverExceedCeiling(t *testing.T) {
	g, _ := newGovernor(50, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.TryAcquire("cred", 1); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, granted)
	assert.Equal(t, 50, g.Snapshot("cred").WindowUsed)
}
