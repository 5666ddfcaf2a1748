package resilience

import "time"

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig keeps the whole retry budget well inside the pipeline's
// branch timeouts: three attempts with 100ms-400ms backoff add under a
// second in the worst case. The breaker needs ten calls before it can
// trip and reopens after thirty seconds.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// normalize starts from the defaults and adopts only the fields a
// caller set to something usable, so a partially filled Config cannot
// produce a zero-backoff hot loop.
func (c Config) normalize() Config {
	out := DefaultConfig()
	out.BreakerEnabled = c.BreakerEnabled

	if c.RetryMaxAttempts > 0 {
		out.RetryMaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryInitialBackoff > 0 {
		out.RetryInitialBackoff = c.RetryInitialBackoff
	}
	if c.RetryMaxBackoff > 0 {
		out.RetryMaxBackoff = c.RetryMaxBackoff
	}
	if c.RetryMultiplier >= 1.0 {
		out.RetryMultiplier = c.RetryMultiplier
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}

	if c.BreakerMinRequests > 0 {
		out.BreakerMinRequests = c.BreakerMinRequests
	}
	if c.BreakerFailureRatio > 0 && c.BreakerFailureRatio <= 1 {
		out.BreakerFailureRatio = c.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout > 0 {
		out.BreakerOpenTimeout = c.BreakerOpenTimeout
	}
	if c.BreakerHalfOpenMaxCalls > 0 {
		out.BreakerHalfOpenMaxCalls = c.BreakerHalfOpenMaxCalls
	}

	return out
}
