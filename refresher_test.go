package privacyfilters_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/krysearch/privacyfilters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRefresher is a [service.Refresher] for tests.
type testRefresher struct {
	onRefresh func(ctx context.Context) (err error)
}

// Refresh implements the [service.Refresher] interface for *testRefresher.
func (r *testRefresher) Refresh(ctx context.Context) (err error) {
	return r.onRefresh(ctx)
}

func TestRefresher(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := privacyfilters.NewRefresher(&privacyfilters.RefresherConfig{
		Logger: slogutil.NewDiscardLogger(),
		Refresher: &testRefresher{
			onRefresh: func(_ context.Context) (err error) {
				calls.Add(1)

				return testError
			},
		},
		Interval: 10 * time.Millisecond,
	})

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	assert.Eventually(t, func() (ok bool) {
		return calls.Load() >= 3
	}, testTimeout, testTimeout/100)

	shutdownCtx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	require.NoError(t, r.Shutdown(shutdownCtx))

	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestRefresher_immediate(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newTextFetcher(map[string]string{
		"ads": "||ads.example^",
	}), nil, newSources("ads"))

	r := privacyfilters.NewRefresher(&privacyfilters.RefresherConfig{
		Logger:    slogutil.NewDiscardLogger(),
		Refresher: e,
		Interval:  time.Hour,
	})

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))

	assert.Eventually(t, func() (ok bool) {
		return e.IsBlocked(ctx, "https://ads.example/")
	}, testTimeout, testTimeout/100)

	require.NoError(t, r.Shutdown(ctx))
}

func TestRefresher_Shutdown_canceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	started := make(chan struct{})
	r := privacyfilters.NewRefresher(&privacyfilters.RefresherConfig{
		Logger: slogutil.NewDiscardLogger(),
		Refresher: &testRefresher{
			onRefresh: func(_ context.Context) (err error) {
				close(started)
				<-release

				return nil
			},
		},
	})

	require.NoError(t, r.Start(context.Background()))
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Shutdown(ctx), context.Canceled)
}
