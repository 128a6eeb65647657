package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig.
func FromRetryConfig(maxAttempts, attemptTimeoutSecs, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if attemptTimeoutSecs > 0 {
		cfg.AttemptTimeout = time.Duration(attemptTimeoutSecs) * time.Second
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// SearchRetryConfig is the search-provider policy built from config values:
// rate-limit aware backoff from initialBackoffMs capped at maxBackoffMs.
func SearchRetryConfig(maxAttempts, attemptTimeoutSecs, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := FromRetryConfig(maxAttempts, attemptTimeoutSecs, initialBackoffMs, maxBackoffMs)
	cfg.JitterFraction = 0
	cfg.Backoff = RateLimitBackoff(cfg.InitialBackoff, cfg.MaxBackoff)
	return cfg
}
