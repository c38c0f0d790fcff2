package api

import "time"

// RetryPolicy controls how failed block executions are retried.
// MaxAttempts bounds the total number of failed attempts per Progress;
// once AttemptCount reaches it, the Progress fails terminally.
//
// The delay before attempt n+1 is InitialBackoff * BackoffMultiplier^(n-1),
// capped at MaxBackoff when MaxBackoff is positive. Retries are scheduled
// as duration waits and driven by the same backstop sweep that resumes
// ordinary timer suspensions.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy is used when the engine is configured without one:
// three attempts, ten-minute initial backoff, doubling, capped at an hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Minute,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}
}

// BackoffFor returns the delay to schedule before the next attempt, given
// the number of failed attempts so far. attempts <= 0 is treated as 1.
func (p RetryPolicy) BackoffFor(attempts int) time.Duration {
	if attempts <= 0 {
		attempts = 1
	}

	backoff := p.InitialBackoff
	if backoff <= 0 {
		return 0
	}

	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := backoff
	for i := 1; i < attempts; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}
