package privacyfilters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/rules"
	"golang.org/x/sync/singleflight"
)

// ErrNoLists is returned by [Engine.Refresh] when no list could be loaded.
// The previous rule set stays active in that case.
const ErrNoLists errors.Error = "no lists loaded"

// ErrClosed is returned by [Engine.Refresh] after [Engine.Close].
const ErrClosed errors.Error = "engine is closed"

// DefaultRefreshTimeout is the default timeout of a single refresh.
const DefaultRefreshTimeout = 5 * time.Minute

// refreshKey is the single-flight key of refreshes.
const refreshKey = "refresh"

// EngineConfig is the configuration structure for [NewEngine].
type EngineConfig struct {
	// Logger is used for logging the refreshes.  If nil, [slog.Default] is
	// used.
	Logger *slog.Logger

	// Fetcher loads the lists.  If nil, a [filterlist.DefaultFetcher] with
	// the default settings is used.
	Fetcher filterlist.Fetcher

	// Metrics is used for the collection of the engine statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// Sources are the lists to load, in the order their rules are added to
	// the rule set.
	Sources []*filterlist.Source

	// RefreshTimeout is the timeout of a single refresh.  If not positive,
	// [DefaultRefreshTimeout] is used.
	RefreshTimeout time.Duration

	// Parallel is the maximum number of lists fetched at the same time.  If
	// not positive, the number is not limited.
	Parallel int
}

// snapshot is the active rule set together with its metadata.
type snapshot struct {
	rules      *RuleSet
	updated    time.Time
	generation uint64
}

// Status describes the active rule set.
type Status struct {
	// Updated is the time the rule set was installed.  It is zero for the
	// initial empty set.
	Updated time.Time

	// Generation is the number of the rule set.  It is zero for the initial
	// empty set and increases with every installed rule set.
	Generation uint64

	// Rules is the number of rules in the set.
	Rules int

	// Dropped is the number of rules that failed to compile.
	Dropped int
}

// Engine owns the active rule set.  The lookups never block and always see a
// complete rule set, even during a refresh.  Engine is safe for concurrent
// use.
type Engine struct {
	logger  *slog.Logger
	fetcher filterlist.Fetcher
	metrics Metrics

	current *atomic.Pointer[snapshot]
	lastGen *atomic.Uint64
	flight  *singleflight.Group

	// closed is canceled by Close.  It stops the shared refresh.
	closed   context.Context
	doClose  context.CancelFunc
	sources  []*filterlist.Source
	timeout  time.Duration
	parallel int
}

// type check
var _ service.Refresher = (*Engine)(nil)

// type check
var _ io.Closer = (*Engine)(nil)

// NewEngine returns a new properly initialized *Engine with an empty rule set.
// c must not be nil.
func NewEngine(c *EngineConfig) (e *Engine) {
	e = &Engine{
		logger:   c.Logger,
		fetcher:  c.Fetcher,
		metrics:  c.Metrics,
		current:  &atomic.Pointer[snapshot]{},
		lastGen:  &atomic.Uint64{},
		flight:   &singleflight.Group{},
		sources:  c.Sources,
		timeout:  c.RefreshTimeout,
		parallel: c.Parallel,
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	if e.fetcher == nil {
		e.fetcher = filterlist.NewDefaultFetcher(nil)
	}

	if e.metrics == nil {
		e.metrics = EmptyMetrics{}
	}

	if e.timeout <= 0 {
		e.timeout = DefaultRefreshTimeout
	}

	e.closed, e.doClose = context.WithCancel(context.Background())

	e.current.Store(&snapshot{
		rules: newRuleSet(nil),
	})

	return e
}

// RuleSet returns the active rule set.  It never blocks.
func (e *Engine) RuleSet() (rs *RuleSet) {
	return e.current.Load().rules
}

// Status returns the description of the active rule set.
func (e *Engine) Status() (s *Status) {
	snap := e.current.Load()

	return &Status{
		Updated:    snap.updated,
		Generation: snap.generation,
		Rules:      snap.rules.Len(),
		Dropped:    snap.rules.Dropped(),
	}
}

// IsBlocked returns true if candidate is blocked by the active rule set.
func (e *Engine) IsBlocked(ctx context.Context, candidate string) (ok bool) {
	_, ok = e.Match(ctx, candidate)

	return ok
}

// Match returns the rule of the active rule set that blocks candidate, if any.
func (e *Engine) Match(ctx context.Context, candidate string) (r *rules.CompiledRule, ok bool) {
	r, ok = e.RuleSet().Match(candidate)
	e.metrics.IncrementLookups(ctx, ok)

	return r, ok
}

// Swap installs rs as the active rule set and returns its generation.  A rule
// set is never replaced by one with a lower generation; installed is false if
// rs lost such a race.
func (e *Engine) Swap(rs *RuleSet) (gen uint64, installed bool) {
	gen = e.lastGen.Add(1)
	next := &snapshot{
		rules:      rs,
		updated:    time.Now(),
		generation: gen,
	}

	for {
		prev := e.current.Load()
		if prev.generation > gen {
			return gen, false
		}

		if e.current.CompareAndSwap(prev, next) {
			return gen, true
		}
	}
}

// Refresh implements the [service.Refresher] interface for *Engine.  It loads
// the lists, compiles them, and installs the new rule set.  Concurrent calls
// share a single refresh.  Canceling ctx stops the waiting but not the shared
// refresh, which is limited by the configured timeout and by [Engine.Close]
// instead.
func (e *Engine) Refresh(ctx context.Context) (err error) {
	if e.closed.Err() != nil {
		return ErrClosed
	}

	ch := e.flight.DoChan(refreshKey, func() (_ any, fErr error) {
		refrCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		stop := context.AfterFunc(e.closed, cancel)
		defer stop()

		return nil, e.refresh(refrCtx)
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for refresh: %w", context.Cause(ctx))
	case res := <-ch:
		return res.Err
	}
}

// Close stops the refresh in progress, if any, and makes the following
// refreshes fail with [ErrClosed].  The active rule set stays.  Close is safe
// for concurrent use and may be called more than once.
func (e *Engine) Close() (err error) {
	e.doClose()

	return nil
}

// refresh loads the lists and installs a new rule set.
func (e *Engine) refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRefresh(ctx, time.Since(start), err) }()

	lists, failed := filterlist.FetchAll(ctx, e.fetcher, e.sources, e.parallel)
	defer func() { e.closeLists(ctx, lists) }()

	var fetchErrs []error
	for _, fErr := range failed {
		e.logger.WarnContext(ctx, "fetching list", "list", fErr.ListID, slogutil.KeyError, fErr.Err)
		e.metrics.IncrementListFailures(ctx, fErr.ListID)
		fetchErrs = append(fetchErrs, fErr)
	}

	if len(lists) == 0 {
		if len(fetchErrs) == 0 {
			return ErrNoLists
		}

		return fmt.Errorf("%w: %w", ErrNoLists, errors.Join(fetchErrs...))
	}

	rs, err := CompileLists(lists)
	if err != nil {
		// Go on with the rules read before the error.
		e.logger.WarnContext(ctx, "compiling lists", slogutil.KeyError, err)
	}

	if e.closed.Err() != nil {
		return ErrClosed
	}

	gen, installed := e.Swap(rs)
	if !installed {
		e.logger.DebugContext(ctx, "rule set superseded", "generation", gen)

		return nil
	}

	e.metrics.SetRuleSet(ctx, rs.Len(), rs.Dropped(), gen)

	e.logger.InfoContext(
		ctx,
		"rule set installed",
		"generation", gen,
		"lists", len(lists),
		"failed", len(failed),
		"rules", rs.Len(),
		"dropped", rs.Dropped(),
		"elapsed", time.Since(start),
	)

	return nil
}

// closeLists closes the lists and logs the errors.
func (e *Engine) closeLists(ctx context.Context, lists []filterlist.RuleList) {
	for _, l := range lists {
		if err := l.Close(); err != nil {
			e.logger.WarnContext(ctx, "closing list", "list", l.GetID(), slogutil.KeyError, err)
		}
	}
}
