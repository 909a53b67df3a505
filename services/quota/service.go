package quota

import (
	"sync"
	"time"

	"github.com/asergian/beacon-sub001/config"
	"github.com/asergian/beacon-sub001/interfaces"
	apperrors "github.com/asergian/beacon-sub001/internal/errors"
	"github.com/asergian/beacon-sub001/internal/logger"
	"github.com/asergian/beacon-sub001/internal/models"
	"github.com/asergian/beacon-sub001/internal/utils"
)

const minRetryAfter = time.Millisecond

type reservation struct {
	at   time.Time
	cost int
}

type credentialState struct {
	reservations []reservation
	windowUsed   int
	day          time.Time
	dayUsed      int
}

type quotaGovernor struct {
	mu            sync.Mutex
	window        time.Duration
	windowCeiling int
	dailyCeiling  int
	clock         func() time.Time
	states        map[string]*credentialState
	log           logger.Logger
}

type Option func(*quotaGovernor)

// WithClock replaces the wall clock. Tests use it to move time without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(g *quotaGovernor) {
		g.clock = clock
	}
}

func NewQuotaGovernor(cfg *config.QuotaConfig, log logger.Logger, opts ...Option) interfaces.QuotaGovernor {
	g := &quotaGovernor{
		window:        cfg.Window,
		windowCeiling: cfg.WindowCeiling,
		dailyCeiling:  cfg.DailyCeiling,
		clock:         utils.Now,
		states:        make(map[string]*credentialState),
		log:           log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAcquire reserves cost units for credential or reports how long to wait. The capacity check and the
// reservation happen under the same lock.
func (g *quotaGovernor) TryAcquire(credential string, cost int) (*models.Permit, error) {
	if cost <= 0 || cost > g.windowCeiling || cost > g.dailyCeiling {
		return nil, apperrors.ErrInvalidQuotaCost
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock().UTC()
	state := g.stateFor(credential)
	g.roll(state, now)

	if state.dayUsed+cost > g.dailyCeiling {
		retryAfter := state.day.Add(24 * time.Hour).Sub(now)
		g.log.Debugf("Daily quota exhausted for %s (%d/%d), retry in %s", credential, state.dayUsed, g.dailyCeiling, retryAfter)
		return nil, &apperrors.QuotaExceededError{Credential: credential, RetryAfter: clampRetry(retryAfter)}
	}

	if state.windowUsed+cost > g.windowCeiling {
		retryAfter := g.windowRetryAfter(state, now, state.windowUsed+cost-g.windowCeiling)
		return nil, &apperrors.QuotaExceededError{Credential: credential, RetryAfter: retryAfter}
	}

	state.reservations = append(state.reservations, reservation{at: now, cost: cost})
	state.windowUsed += cost
	state.dayUsed += cost

	return &models.Permit{
		ID:         utils.GenerateNanoIDWithPrefix("permit", 12),
		Credential: credential,
		Cost:       cost,
		IssuedAt:   now,
	}, nil
}

// Release is a hook for refunding unused cost. Provider calls are charged on reservation, so it does
// nothing today.
func (g *quotaGovernor) Release(permit *models.Permit) {}

func (g *quotaGovernor) Snapshot(credential string) models.QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock().UTC()
	state := g.stateFor(credential)
	g.roll(state, now)

	return models.QuotaState{
		Credential:    credential,
		WindowUsed:    state.windowUsed,
		WindowCeiling: g.windowCeiling,
		DayUsed:       state.dayUsed,
		DayCeiling:    g.dailyCeiling,
		DayStart:      state.day,
		SnapshotAt:    now,
	}
}

func (g *quotaGovernor) stateFor(credential string) *credentialState {
	state, ok := g.states[credential]
	if !ok {
		state = &credentialState{}
		g.states[credential] = state
	}
	return state
}

// roll drops reservations that left the window and resets the day counter at UTC midnight.
func (g *quotaGovernor) roll(state *credentialState, now time.Time) {
	expired := 0
	for _, r := range state.reservations {
		if r.at.Add(g.window).After(now) {
			break
		}
		state.windowUsed -= r.cost
		expired++
	}
	if expired > 0 {
		state.reservations = append(state.reservations[:0], state.reservations[expired:]...)
	}

	today := now.Truncate(24 * time.Hour)
	if !state.day.Equal(today) {
		state.day = today
		state.dayUsed = 0
	}
}

// windowRetryAfter returns the time until the oldest reservations covering the shortfall expire.
func (g *quotaGovernor) windowRetryAfter(state *credentialState, now time.Time, shortfall int) time.Duration {
	freed := 0
	for _, r := range state.reservations {
		freed += r.cost
		if freed >= shortfall {
			return clampRetry(r.at.Add(g.window).Sub(now))
		}
	}
	return clampRetry(g.window)
}

func clampRetry(d time.Duration) time.Duration {
	if d < minRetryAfter {
		return minRetryAfter
	}
	return d
}
