package privacyfilters

import (
	"context"
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
)

// DefaultRefreshInterval is the default interval between refreshes, once a
// day.
const DefaultRefreshInterval = 24 * time.Hour

// RefresherConfig is the configuration structure for [NewRefresher].
type RefresherConfig struct {
	// Logger is used for logging the refresh errors.  If nil,
	// [slog.Default] is used.
	Logger *slog.Logger

	// Refresher is the entity being refreshed, usually an [*Engine].  It
	// must not be nil.
	Refresher service.Refresher

	// Interval is the time between refreshes.  If not positive,
	// [DefaultRefreshInterval] is used.
	Interval time.Duration
}

// Refresher refreshes an entity on start and then periodically, until it's
// shut down.
type Refresher struct {
	logger    *slog.Logger
	refresher service.Refresher
	done      chan struct{}
	cancel    context.CancelFunc
	interval  time.Duration
}

// type check
var _ service.Interface = (*Refresher)(nil)

// NewRefresher returns a new properly initialized *Refresher.  c must not be
// nil.
func NewRefresher(c *RefresherConfig) (r *Refresher) {
	r = &Refresher{
		logger:    c.Logger,
		refresher: c.Refresher,
		done:      make(chan struct{}),
		interval:  c.Interval,
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	if r.interval <= 0 {
		r.interval = DefaultRefreshInterval
	}

	return r
}

// Start implements the [service.Interface] interface for *Refresher.  It
// starts the refresh loop, with the first refresh running right away, and
// returns without waiting for it.  ctx is used for the values of the refresh
// contexts only.  Start must not be called more than once.
func (r *Refresher) Start(ctx context.Context) (err error) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	go r.loop(loopCtx)

	return nil
}

// Shutdown implements the [service.Interface] interface for *Refresher.  It
// stops the loop and waits for it to exit or for ctx to end.  The context of
// the refresh in progress is canceled, but an entity may keep refreshing in
// the background: a shared refresh of an [*Engine] runs until it's finished
// or [Engine.Close] is called.
func (r *Refresher) Shutdown(ctx context.Context) (err error) {
	if r.cancel == nil {
		return nil
	}

	r.cancel()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// loop refreshes the entity and then waits for the ticks until ctx is
// canceled.
func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)
	defer slogutil.RecoverAndLog(ctx, r.logger)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.refresh(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refresh runs a single refresh and logs its error.
func (r *Refresher) refresh(ctx context.Context) {
	if err := r.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "refreshing", slogutil.KeyError, err)
	}
}
