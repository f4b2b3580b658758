package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/krysearch/privacyfilters"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/internal/httpapi"
	"github.com/krysearch/privacyfilters/rules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEngine is the [httpapi.Engine] for tests.
type testEngine struct {
	rs         *privacyfilters.RuleSet
	onRefresh  func(ctx context.Context) (err error)
	generation uint64
}

// type check
var _ httpapi.Engine = (*testEngine)(nil)

// Match implements the [httpapi.Engine] interface for *testEngine.
func (e *testEngine) Match(_ context.Context, c string) (r *rules.CompiledRule, ok bool) {
	return e.rs.Match(c)
}

// Status implements the [httpapi.Engine] interface for *testEngine.
func (e *testEngine) Status() (s *privacyfilters.Status) {
	return &privacyfilters.Status{
		Updated:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Generation: e.generation,
		Rules:      e.rs.Len(),
		Dropped:    e.rs.Dropped(),
	}
}

// Refresh implements the [httpapi.Engine] interface for *testEngine.
func (e *testEngine) Refresh(ctx context.Context) (err error) {
	return e.onRefresh(ctx)
}

// newTestEngine returns a *testEngine with a rule set of a single list.
func newTestEngine(t *testing.T) (e *testEngine) {
	t.Helper()

	rs := privacyfilters.Compile([]filterlist.RuleList{&filterlist.StringRuleList{
		ID:        "ads",
		RulesText: "||ads.example^\n/[invalid\n",
	}})

	e = &testEngine{
		rs:         rs,
		generation: 1,
	}

	e.onRefresh = func(_ context.Context) (err error) {
		e.generation++

		return nil
	}

	return e
}

// serve sends the request to h and returns the recorded response.
func serve(h http.Handler, method, target string) (rw *httptest.ResponseRecorder) {
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(method, target, nil))

	return rw
}

func TestServer_check(t *testing.T) {
	t.Parallel()

	s := httpapi.New(&httpapi.Config{
		Logger: slogutil.NewDiscardLogger(),
		Engine: newTestEngine(t),
	})
	h := s.Handler()

	testCases := []struct {
		want     *httpapi.CheckResponse
		name     string
		query    string
		wantCode int
	}{{
		want: &httpapi.CheckResponse{
			URL:     "https://ads.example/banner",
			Rule:    "||ads.example^",
			List:    "ads",
			Blocked: true,
		},
		name:     "blocked",
		query:    "https://ads.example/banner",
		wantCode: http.StatusOK,
	}, {
		want: &httpapi.CheckResponse{
			URL: "https://example.org/",
		},
		name:     "not_blocked",
		query:    "https://example.org/",
		wantCode: http.StatusOK,
	}, {
		want: &httpapi.CheckResponse{
			URL: "https://ads.example/a\tb",
		},
		name:     "invalid_candidate",
		query:    "https://ads.example/a\tb",
		wantCode: http.StatusOK,
	}, {
		want:     nil,
		name:     "no_url",
		query:    "",
		wantCode: http.StatusBadRequest,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			target := httpapi.PathCheck + "?url=" + url.QueryEscape(tc.query)
			rw := serve(h, http.MethodGet, target)
			require.Equal(t, tc.wantCode, rw.Code)
			assert.Equal(t, "application/json", rw.Header().Get("Content-Type"))

			if tc.want == nil {
				return
			}

			got := &httpapi.CheckResponse{}
			require.NoError(t, json.NewDecoder(rw.Body).Decode(got))
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("bad_method", func(t *testing.T) {
		t.Parallel()

		rw := serve(h, http.MethodPost, httpapi.PathCheck+"?url=a")
		assert.Equal(t, http.StatusMethodNotAllowed, rw.Code)
	})
}

func TestServer_status(t *testing.T) {
	t.Parallel()

	s := httpapi.New(&httpapi.Config{
		Logger: slogutil.NewDiscardLogger(),
		Engine: newTestEngine(t),
	})

	rw := serve(s.Handler(), http.MethodGet, httpapi.PathStatus)
	require.Equal(t, http.StatusOK, rw.Code)

	got := &httpapi.StatusResponse{}
	require.NoError(t, json.NewDecoder(rw.Body).Decode(got))

	assert.Equal(t, uint64(1), got.Generation)
	assert.Equal(t, 1, got.Rules)
	assert.Equal(t, 1, got.Dropped)
	require.NotNil(t, got.Updated)
	assert.True(t, got.Updated.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestServer_refresh(t *testing.T) {
	t.Parallel()

	t.Run("rate_limited", func(t *testing.T) {
		t.Parallel()

		s := httpapi.New(&httpapi.Config{
			Logger:       slogutil.NewDiscardLogger(),
			Engine:       newTestEngine(t),
			RefreshRate:  1.0 / 3600,
			RefreshBurst: 1,
		})
		h := s.Handler()

		rw := serve(h, http.MethodPost, httpapi.PathRefresh)
		require.Equal(t, http.StatusOK, rw.Code)

		got := &httpapi.StatusResponse{}
		require.NoError(t, json.NewDecoder(rw.Body).Decode(got))
		assert.Equal(t, uint64(2), got.Generation)

		rw = serve(h, http.MethodPost, httpapi.PathRefresh)
		assert.Equal(t, http.StatusTooManyRequests, rw.Code)
		assert.NotEmpty(t, rw.Header().Get("Retry-After"))
	})

	t.Run("no_lists", func(t *testing.T) {
		t.Parallel()

		e := newTestEngine(t)
		e.onRefresh = func(_ context.Context) (err error) {
			return privacyfilters.ErrNoLists
		}

		s := httpapi.New(&httpapi.Config{
			Logger: slogutil.NewDiscardLogger(),
			Engine: e,
		})

		rw := serve(s.Handler(), http.MethodPost, httpapi.PathRefresh)
		require.Equal(t, http.StatusBadGateway, rw.Code)

		got := &httpapi.ErrorResponse{}
		require.NoError(t, json.NewDecoder(rw.Body).Decode(got))
		assert.Equal(t, string(privacyfilters.ErrNoLists), got.Error)
	})
}

func TestServer_metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter"})
	reg.MustRegister(c)
	c.Inc()

	s := httpapi.New(&httpapi.Config{
		Logger:   slogutil.NewDiscardLogger(),
		Engine:   newTestEngine(t),
		Gatherer: reg,
	})

	rw := serve(s.Handler(), http.MethodGet, httpapi.PathMetrics)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.True(t, strings.Contains(rw.Body.String(), "test_counter 1"))

	s = httpapi.New(&httpapi.Config{
		Logger: slogutil.NewDiscardLogger(),
		Engine: newTestEngine(t),
	})

	rw = serve(s.Handler(), http.MethodGet, httpapi.PathMetrics)
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestServer_StartShutdown(t *testing.T) {
	t.Parallel()

	s := httpapi.New(&httpapi.Config{
		Logger:     slogutil.NewDiscardLogger(),
		Engine:     newTestEngine(t),
		ListenAddr: "127.0.0.1:0",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Shutdown(ctx))
}
