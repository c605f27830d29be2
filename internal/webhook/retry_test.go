package webhook

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

func testPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		Enabled:           true,
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2,
		RetryOn:           []string{model.ErrClassTimeout, model.ErrClassConnection, model.ErrClassHTTP5xx},
	}
}

func TestNextRetryBackoffSequence(t *testing.T) {
	policy := testPolicy()
	rng := rand.New(rand.NewSource(1))

	// Expected centers 1s, 2s, 4s with jitter within ±20%.
	for attempt, center := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := NextRetry(policy, attempt, model.ErrClassHTTP5xx, rng)
		if d.GiveUp {
			t.Fatalf("attempt %d: unexpected give up", attempt)
		}
		lo := time.Duration(float64(center) * 0.8)
		hi := time.Duration(float64(center) * 1.2)
		if d.RetryAfter < lo || d.RetryAfter > hi {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d.RetryAfter, lo, hi)
		}
	}

	// Fourth failure exhausts the budget of 3 retries.
	if d := NextRetry(policy, 3, model.ErrClassHTTP5xx, rng); !d.GiveUp {
		t.Fatalf("expected give up after max retries, got delay %v", d.RetryAfter)
	}
}

func TestNextRetryClassGating(t *testing.T) {
	policy := testPolicy()
	rng := rand.New(rand.NewSource(7))

	cases := []struct {
		class  string
		giveUp bool
	}{
		{model.ErrClassTimeout, false},
		{model.ErrClassConnection, false},
		{model.ErrClassHTTP5xx, false},
		{model.ErrClassHTTP4xx, true},
		{model.ErrClassOther, true},
	}
	for _, tc := range cases {
		d := NextRetry(policy, 0, tc.class, rng)
		if d.GiveUp != tc.giveUp {
			t.Errorf("class %s: GiveUp = %v, want %v", tc.class, d.GiveUp, tc.giveUp)
		}
	}
}

func TestNextRetryDisabled(t *testing.T) {
	policy := testPolicy()
	policy.Enabled = false
	if d := NextRetry(policy, 0, model.ErrClassHTTP5xx, rand.New(rand.NewSource(1))); !d.GiveUp {
		t.Fatal("disabled policy must give up immediately")
	}
}

func TestBackoffDelayCap(t *testing.T) {
	policy := testPolicy()
	policy.MaxDelay = 5 * time.Second
	rng := rand.New(rand.NewSource(3))

	// attempt 10 would be 1024s uncapped; the cap plus +20% jitter
	// bounds the result at 6s.
	for i := 0; i < 50; i++ {
		d := backoffDelay(policy, 10, rng)
		if d > 6*time.Second {
			t.Fatalf("delay %v exceeds jittered cap", d)
		}
	}
}

func TestBackoffDelayZeroPolicyDefaults(t *testing.T) {
	var policy model.RetryPolicy
	rng := rand.New(rand.NewSource(9))
	d := backoffDelay(policy, 0, rng)
	if d <= 0 {
		t.Fatalf("expected positive delay from defaults, got %v", d)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{500, model.ErrClassHTTP5xx},
		{503, model.ErrClassHTTP5xx},
		{400, model.ErrClassHTTP4xx},
		{404, model.ErrClassHTTP4xx},
		{429, model.ErrClassHTTP4xx},
		{302, model.ErrClassOther},
	}
	for _, tc := range cases {
		if got := ClassifyStatus(tc.status); got != tc.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}
