// Package retry decides whether a scan failure is worth another attempt
// and how long to wait before it.
package retry

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// Class is the retry classification of a failure.
type Class int

const (
	// Permanent failures are never retried (auth failure, repository
	// not found, malformed input). Unmatched errors classify as
	// Permanent so a misclassification costs one scan, not an
	// unbounded retry loop.
	Permanent Class = iota
	// Transient failures are retry-eligible up to the retry budget.
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// DefaultTransientIndicators is the conservative keyword list used to
// recognize retry-eligible failures. The list is a policy choice;
// callers may supply their own.
var DefaultTransientIndicators = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"temporary failure",
	"temporarily unavailable",
	"service unavailable",
	"rate limit",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"no such host",
	"dns",
	"tls handshake",
	"unexpected eof",
	"broken pipe",
	"network is unreachable",
}

// Classifier matches error text against a set of transient indicators.
type Classifier struct {
	indicators []string
}

// NewClassifier creates a classifier with the given indicators, or the
// default set when none are supplied.
func NewClassifier(indicators ...string) *Classifier {
	if len(indicators) == 0 {
		indicators = DefaultTransientIndicators
	}
	lowered := make([]string, len(indicators))
	for i, ind := range indicators {
		lowered[i] = strings.ToLower(ind)
	}
	return &Classifier{indicators: lowered}
}

// Classify returns Transient iff the error text contains one of the
// transient indicators; anything else is Permanent.
func (c *Classifier) Classify(errText string) Class {
	lowered := strings.ToLower(errText)
	for _, ind := range c.indicators {
		if strings.Contains(lowered, ind) {
			return Transient
		}
	}
	return Permanent
}

const (
	initialDelay = 1 * time.Second
	maxDelay     = 60 * time.Second
)

// Delay returns the backoff before the attempt following retryCount
// failures: min(2^retryCount, 60) seconds. Exponential, capped, and
// deterministic (randomization disabled) so total run time stays
// bounded and predictable.
func Delay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	// The constructor primes the interval state with the library
	// defaults; Reset applies the configuration above.
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		d = b.NextBackOff()
	}
	return d
}
