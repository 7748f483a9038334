package resilience

import (
	"strings"
	"time"
)

// Operation families. Operation names start with their family followed by a
// dot: "provider.gemini", "storage.s3.put", "nats.publish".
const (
	FamilyProvider = "provider"
	FamilyStorage  = "storage"
	FamilyQueue    = "nats"
)

// Config tunes retries and the per-operation circuit breaker. The Retry and
// AttemptTimeout fields are the base policy; Families overrides them for one
// operation family. A zero AttemptTimeout leaves each attempt bounded only by
// the caller's context.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	AttemptTimeout      time.Duration

	Families map[string]FamilyPolicy

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// FamilyPolicy overrides the base retry policy. Zero fields keep the base.
type FamilyPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// DefaultConfig gives providers fewer, slower retries and bounds every
// storage and queue attempt.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		Families: map[string]FamilyPolicy{
			FamilyProvider: {MaxAttempts: 2, InitialBackoff: time.Second},
			FamilyStorage:  {AttemptTimeout: 15 * time.Second},
			FamilyQueue:    {AttemptTimeout: 2 * time.Second, InitialBackoff: 50 * time.Millisecond},
		},

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// Family returns the family prefix of an operation name.
func Family(operation string) string {
	family, _, _ := strings.Cut(operation, ".")
	return family
}

// retryPolicy is the effective retry policy of one operation.
type retryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	attemptTimeout time.Duration
}

func (c Config) policyFor(operation string) retryPolicy {
	p := retryPolicy{
		maxAttempts:    c.RetryMaxAttempts,
		initialBackoff: c.RetryInitialBackoff,
		maxBackoff:     c.RetryMaxBackoff,
		multiplier:     c.RetryMultiplier,
		attemptTimeout: c.AttemptTimeout,
	}
	override, ok := c.Families[Family(operation)]
	if !ok {
		return p
	}
	if override.MaxAttempts > 0 {
		p.maxAttempts = override.MaxAttempts
	}
	if override.InitialBackoff > 0 {
		p.initialBackoff = override.InitialBackoff
	}
	if p.maxBackoff < p.initialBackoff {
		p.maxBackoff = p.initialBackoff
	}
	if override.AttemptTimeout > 0 {
		p.attemptTimeout = override.AttemptTimeout
	}
	return p
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.AttemptTimeout < 0 {
		out.AttemptTimeout = 0
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
