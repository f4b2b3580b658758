// Package metrics contains the Prometheus implementations of the metrics
// interfaces of the other packages.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/krysearch/privacyfilters"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the default namespace of the metrics.
const Namespace = "privacyfilters"

// Subsystems of the metrics.
const (
	subsystemEngine = "engine"
	subsystemProxy  = "proxy"
)

// Engine is the Prometheus-based implementation of the
// [privacyfilters.Metrics] interface.
type Engine struct {
	refreshDuration prometheus.Histogram
	refreshes       *prometheus.CounterVec
	listFailures    *prometheus.CounterVec
	rules           prometheus.Gauge
	droppedRules    prometheus.Gauge
	generation      prometheus.Gauge
	lookups         *prometheus.CounterVec
}

// type check
var _ privacyfilters.Metrics = (*Engine)(nil)

// NewEngine registers the engine metrics in reg and returns a properly
// initialized *Engine.
func NewEngine(namespace string, reg prometheus.Registerer) (m *Engine, err error) {
	const (
		refreshDuration = "refresh_duration_seconds"
		refreshes       = "refreshes_total"
		listFailures    = "list_failures_total"
		rules           = "rules"
		droppedRules    = "dropped_rules"
		generation      = "generation"
		lookups         = "lookups_total"
	)

	m = &Engine{
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:      refreshDuration,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "Time spent on refreshing the rule set.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      refreshes,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "The number of refreshes by result.",
		}, []string{"success"}),
		listFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      listFailures,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "The number of failed list fetches.",
		}, []string{"list"}),
		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      rules,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "The number of rules in the active rule set.",
		}),
		droppedRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      droppedRules,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "The number of rules of the active rule set that failed to compile.",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      generation,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "The generation of the active rule set.",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      lookups,
			Namespace: namespace,
			Subsystem: subsystemEngine,
			Help:      "The number of candidate lookups by result.",
		}, []string{"blocked"}),
	}

	collectors := []namedCollector{
		{c: m.refreshDuration, name: refreshDuration},
		{c: m.refreshes, name: refreshes},
		{c: m.listFailures, name: listFailures},
		{c: m.rules, name: rules},
		{c: m.droppedRules, name: droppedRules},
		{c: m.generation, name: generation},
		{c: m.lookups, name: lookups},
	}

	err = register(reg, collectors)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// namedCollector is a collector with the name for error messages.
type namedCollector struct {
	c    prometheus.Collector
	name string
}

// register registers the collectors in reg and returns the joined errors.
func register(reg prometheus.Registerer, collectors []namedCollector) (err error) {
	var errs []error
	for _, c := range collectors {
		if regErr := reg.Register(c.c); regErr != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.name, regErr))
		}
	}

	return errors.Join(errs...)
}

// ObserveRefresh implements the [privacyfilters.Metrics] interface for
// *Engine.
func (m *Engine) ObserveRefresh(_ context.Context, dur time.Duration, err error) {
	m.refreshDuration.Observe(dur.Seconds())
	m.refreshes.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

// IncrementListFailures implements the [privacyfilters.Metrics] interface for
// *Engine.
func (m *Engine) IncrementListFailures(_ context.Context, listID string) {
	m.listFailures.WithLabelValues(listID).Inc()
}

// SetRuleSet implements the [privacyfilters.Metrics] interface for *Engine.
func (m *Engine) SetRuleSet(_ context.Context, rules, dropped int, generation uint64) {
	m.rules.Set(float64(rules))
	m.droppedRules.Set(float64(dropped))
	m.generation.Set(float64(generation))
}

// IncrementLookups implements the [privacyfilters.Metrics] interface for
// *Engine.
func (m *Engine) IncrementLookups(_ context.Context, blocked bool) {
	m.lookups.WithLabelValues(strconv.FormatBool(blocked)).Inc()
}
