// Package retry computes the jittered exponential backoff shared by the
// structured-completion executor and the batch runner.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default backoff settings.
const (
	DefaultBaseDelay   = 250 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
	DefaultJitterRatio = 0.25
)

// maxExponent keeps 2^n well inside float64 precision for absurd attempt numbers.
const maxExponent = 62

// Policy describes an exponential backoff with proportional jitter.
//
// The delay for attempt n is min(Base * 2^max(0, n-1), Max) plus a jitter of
// up to JitterRatio of that value. A zero Policy never waits.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the exponential part of the delay. Zero or negative disables the cap.
	Max time.Duration

	// JitterRatio scales the random component, 0.25 adds up to 25%.
	JitterRatio float64
}

// DefaultPolicy returns the backoff used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Base:        DefaultBaseDelay,
		Max:         DefaultMaxDelay,
		JitterRatio: DefaultJitterRatio,
	}
}

// Delay returns the wait before retrying after the given attempt number.
// rng must return values in [0, 1); a nil rng disables jitter. The result is
// rounded to whole milliseconds and is deterministic for a given rng.
func (p Policy) Delay(attempt int, rng func() float64) time.Duration {
	exponent := attempt - 1
	if exponent < 0 {
		exponent = 0
	}
	if exponent > maxExponent {
		exponent = maxExponent
	}

	exponential := float64(p.Base) * math.Pow(2, float64(exponent))
	if p.Max > 0 && exponential > float64(p.Max) {
		exponential = float64(p.Max)
	}

	jitter := 0.0
	if rng != nil && p.JitterRatio > 0 {
		jitter = exponential * p.JitterRatio * rng()
	}

	ms := math.Round((exponential + jitter) / float64(time.Millisecond))
	if ms > float64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// Ceiling is the largest value Delay can return for a capped policy.
func (p Policy) Ceiling() time.Duration {
	return time.Duration(float64(p.Max) * (1 + p.JitterRatio))
}

// Random is the default jitter source.
func Random() float64 {
	return rand.Float64()
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
