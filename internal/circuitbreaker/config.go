// Package circuitbreaker implements the circuit breaker protecting
// gateway-initiated backend calls. Each protected operation gets its
// own breaker, obtained from a Registry by operation name.
package circuitbreaker

import "time"

// Config holds configuration for a circuit breaker.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening
	// the circuit.
	MaxFailures int

	// CoolDown is the duration the circuit stays open before
	// transitioning to half-open.
	CoolDown time.Duration

	// HalfOpenMax is the maximum number of probe requests allowed in
	// half-open state.
	HalfOpenMax int

	// SuccessThreshold is the number of successes needed to close the
	// circuit from half-open state.
	SuccessThreshold int

	// FailureRatio is an optional failure ratio threshold (0.0 to 1.0).
	// If set, the circuit also opens when the ratio over the sampling
	// window exceeds it.
	FailureRatio float64

	// MinRequests is the minimum number of requests before the failure
	// ratio is evaluated.
	MinRequests int

	// SamplingWindow is the rolling window over which failures are
	// counted in closed state.
	SamplingWindow time.Duration

	// IsSuccessful classifies an error as a success or failure. If nil,
	// all non-nil errors count as failures. Business-rule rejections
	// (bad credentials, duplicate email) are classified as successes so
	// the breaker only reacts to unavailability.
	IsSuccessful func(err error) bool

	// OnStateChange is called when the breaker changes state.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:      5,
		CoolDown:         30 * time.Second,
		HalfOpenMax:      1,
		SuccessThreshold: 1,
		FailureRatio:     0,
		MinRequests:      10,
		SamplingWindow:   time.Minute,
	}
}

// Validate validates the configuration, replacing out-of-range values
// with defaults.
func (c *Config) Validate() {
	if c.MaxFailures < 1 {
		c.MaxFailures = 5
	}
	if c.CoolDown < time.Millisecond {
		c.CoolDown = 30 * time.Second
	}
	if c.HalfOpenMax < 1 {
		c.HalfOpenMax = 1
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = 1
	}
	// A half-open circuit admits at most HalfOpenMax probes before it
	// either closes or reopens, so a success threshold above that cap
	// could never be met and the circuit would reject calls forever.
	if c.SuccessThreshold > c.HalfOpenMax {
		c.SuccessThreshold = c.HalfOpenMax
	}
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0
	}
	if c.MinRequests < 1 {
		c.MinRequests = 10
	}
	if c.SamplingWindow < time.Second {
		c.SamplingWindow = time.Minute
	}
}
