package privacyfilters

import (
	"context"
	"time"
)

// Metrics is an interface for collection of the engine statistics.
type Metrics interface {
	// ObserveRefresh records a refresh that took dur.  err is the error of
	// the refresh, if any.
	ObserveRefresh(ctx context.Context, dur time.Duration, err error)

	// IncrementListFailures increments the number of failed fetches of the
	// list with the given identifier.
	IncrementListFailures(ctx context.Context, listID string)

	// SetRuleSet records the parameters of the newly installed rule set.
	SetRuleSet(ctx context.Context, rules, dropped int, generation uint64)

	// IncrementLookups increments the number of candidate lookups.
	IncrementLookups(ctx context.Context, blocked bool)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// ObserveRefresh implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) ObserveRefresh(_ context.Context, _ time.Duration, _ error) {}

// IncrementListFailures implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementListFailures(_ context.Context, _ string) {}

// SetRuleSet implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) SetRuleSet(_ context.Context, _, _ int, _ uint64) {}

// IncrementLookups implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementLookups(_ context.Context, _ bool) {}
