package supervisor

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RestartPolicy decides how long to wait before relaunching a worker
// after it exits. The policy never decides WHETHER to relaunch; the
// supervisor always does.
type RestartPolicy interface {
	// NextDelay returns the pause before the next invocation given the
	// previous invocation's exit status and uptime.
	NextDelay(st ExitStatus, uptime time.Duration) time.Duration
	// Reset restores the policy to its initial state
	Reset()
}

// Immediate is the default policy: relaunch with zero delay, regardless
// of outcome. This preserves the harness's historical behavior — a worker
// with a persistent startup bug becomes a tight crash loop. Operators who
// want throttling select one of the other policies in config.
type Immediate struct{}

func (Immediate) NextDelay(ExitStatus, time.Duration) time.Duration { return 0 }
func (Immediate) Reset()                                            {}

// Fixed pauses a constant duration between invocations
type Fixed struct {
	Delay time.Duration
}

func (f Fixed) NextDelay(ExitStatus, time.Duration) time.Duration { return f.Delay }
func (Fixed) Reset()                                              {}

// Exponential backs off between rapid restarts. A run lasting at least
// ResetAfter counts as healthy and resets the schedule, so a worker that
// crashed during a transient outage is not still throttled hours later.
type Exponential struct {
	resetAfter time.Duration
	backoff    *backoff.ExponentialBackOff
}

// NewExponential builds an exponential restart policy
func NewExponential(initial, max, resetAfter time.Duration) *Exponential {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	// A single supervised instance gains nothing from jitter, and
	// deterministic delays are much easier to reason about in logs
	b.RandomizationFactor = 0
	b.Reset()

	return &Exponential{
		resetAfter: resetAfter,
		backoff:    b,
	}
}

func (e *Exponential) NextDelay(_ ExitStatus, uptime time.Duration) time.Duration {
	if e.resetAfter > 0 && uptime >= e.resetAfter {
		e.backoff.Reset()
	}
	return e.backoff.NextBackOff()
}

func (e *Exponential) Reset() {
	e.backoff.Reset()
}
