package webhook

import (
	"math"
	"math/rand"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

// RetryDecision is the outcome of consulting the retry policy after a
// failed delivery attempt.  When GiveUp is false, RetryAfter holds the
// delay before the next attempt.
type RetryDecision struct {
	GiveUp     bool
	RetryAfter time.Duration
}

// NextRetry decides whether a delivery should be retried after the
// given 0-based attempt failed with the given error class.  The policy
// gives up when retries are disabled, the class is not in RetryOn, or
// the attempt count has reached MaxRetries.  Otherwise the delay is
// min(maxDelay, initialDelay * multiplier^attempt) with a bounded
// jitter of ±20%.
func NextRetry(policy model.RetryPolicy, attempt int, errClass string, rng *rand.Rand) RetryDecision {
	if !policy.Enabled || attempt >= policy.MaxRetries {
		return RetryDecision{GiveUp: true}
	}
	retryable := false
	for _, class := range policy.RetryOn {
		if class == errClass {
			retryable = true
			break
		}
	}
	if !retryable {
		return RetryDecision{GiveUp: true}
	}
	return RetryDecision{RetryAfter: backoffDelay(policy, attempt, rng)}
}

// backoffDelay computes the capped exponential delay for an attempt,
// then applies jitter in [-20%, +20%].  Ignoring jitter the sequence
// is monotone non-decreasing and never exceeds MaxDelay.
func backoffDelay(policy model.RetryPolicy, attempt int, rng *rand.Rand) time.Duration {
	initial := policy.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := policy.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	max := policy.MaxDelay
	if max <= 0 {
		max = 60 * time.Second
	}
	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay > max || delay <= 0 { // <= 0 guards float overflow
		delay = max
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	// jitter factor in [0.8, 1.2]
	factor := 0.8 + rng.Float64()*0.4
	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		jittered = max
	}
	return jittered
}

// ClassifyStatus maps a final HTTP status code to an error class.
// 2xx is success and never reaches the policy; everything below 500
// except timeouts counts as a client error.
func ClassifyStatus(status int) string {
	switch {
	case status >= 500:
		return model.ErrClassHTTP5xx
	case status >= 400:
		return model.ErrClassHTTP4xx
	default:
		return model.ErrClassOther
	}
}
