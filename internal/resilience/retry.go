// Package resilience holds the bounded retry policy used when a
// collaborator is not ready yet (initial-load races).
package resilience

import "time"

// Policy describes a short fixed-schedule retry: up to MaxAttempts
// tries spaced Interval apart, then give up. Giving up is silent;
// callers degrade gracefully instead of failing.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// Interval is the fixed delay between attempts.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultPolicy returns the retry schedule used for projector readiness.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 8, Interval: 250 * time.Millisecond}
}

// Next reports whether another attempt is allowed after the given
// number of completed attempts, and the delay before it.
func (p Policy) Next(completed int) (time.Duration, bool) {
	if completed >= p.MaxAttempts {
		return 0, false
	}
	iv := p.Interval
	if iv <= 0 {
		iv = 250 * time.Millisecond
	}
	return iv, true
}
