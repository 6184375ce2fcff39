package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryInitialInterval = 30 * time.Second
	retryMaxInterval     = 30 * time.Minute
)

// retryDelay returns the wait before retrying a job after its nth consumed
// attempt. Deterministic exponential growth, capped; jitter is disabled so
// retry times stay predictable for operators.
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
