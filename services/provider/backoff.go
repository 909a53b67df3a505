package provider

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoffDelay returns base*2^attempt capped at max, jittered into [d/2, d).
func backoffDelay(attempt int, base, max time.Duration, jitter func() float64) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if max > 0 && delay > max {
		delay = max
	}
	half := delay / 2
	return half + time.Duration(jitter()*float64(delay-half))
}

func defaultJitter() float64 {
	return rand.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
