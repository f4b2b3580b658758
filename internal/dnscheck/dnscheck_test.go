package dnscheck_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/krysearch/privacyfilters/internal/dnscheck"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 1 * time.Second

// Common hostnames for tests.
const (
	testHostGood  = "good.example"
	testHostNX    = "nx.example"
	testHostEmpty = "empty.example"
	testHostFail  = "fail.example"
	testHostGarb  = "garbage.example"
)

// newDoHServer returns a test DNS-over-HTTPS server and the counter of the
// requests it has served.
func newDoHServer(t *testing.T) (srv *httptest.Server, reqs *atomic.Int32) {
	t.Helper()

	reqs = &atomic.Int32{}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs.Add(1)

		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != dnscheck.MimeType {
			http.Error(w, "bad request", http.StatusBadRequest)

			return
		}

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		req := &dns.Msg{}
		require.NoError(t, req.Unpack(body))
		require.Len(t, req.Question, 1)

		resp := &dns.Msg{}
		resp.SetReply(req)

		switch req.Question[0].Name {
		case dns.Fqdn(testHostGood):
			rr, rrErr := dns.NewRR(dns.Fqdn(testHostGood) + " 300 IN A 192.0.2.1")
			require.NoError(t, rrErr)

			resp.Answer = append(resp.Answer, rr)
		case dns.Fqdn(testHostNX):
			resp.Rcode = dns.RcodeNameError
		case dns.Fqdn(testHostFail):
			http.Error(w, "internal error", http.StatusInternalServerError)

			return
		case dns.Fqdn(testHostGarb):
			_, _ = w.Write([]byte("not a dns message"))

			return
		}

		packed, err := resp.Pack()
		require.NoError(t, err)

		w.Header().Set("Content-Type", dnscheck.MimeType)
		_, _ = w.Write(packed)
	}))
	t.Cleanup(srv.Close)

	return srv, reqs
}

func TestDoH_IsResolvable(t *testing.T) {
	t.Parallel()

	srv, _ := newDoHServer(t)
	d := dnscheck.NewDoH(&dnscheck.Config{
		Logger:   slogutil.NewDiscardLogger(),
		Client:   srv.Client(),
		URL:      srv.URL,
		CacheTTL: -1,
	})

	testCases := []struct {
		want    assert.BoolAssertionFunc
		wantErr assert.ErrorAssertionFunc
		name    string
		host    string
	}{{
		want:    assert.True,
		wantErr: assert.NoError,
		name:    "good",
		host:    testHostGood,
	}, {
		want:    assert.False,
		wantErr: assert.NoError,
		name:    "nxdomain",
		host:    testHostNX,
	}, {
		want:    assert.False,
		wantErr: assert.NoError,
		name:    "no_answers",
		host:    testHostEmpty,
	}, {
		want:    assert.False,
		wantErr: assert.Error,
		name:    "server_error",
		host:    testHostFail,
	}, {
		want:    assert.False,
		wantErr: assert.Error,
		name:    "garbage",
		host:    testHostGarb,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			t.Cleanup(cancel)

			ok, err := d.IsResolvable(ctx, tc.host)
			tc.wantErr(t, err)
			tc.want(t, ok)
		})
	}
}

func TestDoH_IsResolvable_badResponse(t *testing.T) {
	t.Parallel()

	srv, _ := newDoHServer(t)
	d := dnscheck.NewDoH(&dnscheck.Config{
		Logger: slogutil.NewDiscardLogger(),
		Client: srv.Client(),
		URL:    srv.URL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	_, err := d.IsResolvable(ctx, testHostGarb)
	assert.ErrorIs(t, err, dnscheck.ErrBadResponse)

	_, err = d.IsResolvable(ctx, testHostFail)
	assert.ErrorIs(t, err, dnscheck.ErrBadResponse)
}

func TestDoH_IsResolvable_cache(t *testing.T) {
	t.Parallel()

	srv, reqs := newDoHServer(t)
	d := dnscheck.NewDoH(&dnscheck.Config{
		Logger:   slogutil.NewDiscardLogger(),
		Client:   srv.Client(),
		URL:      srv.URL,
		CacheTTL: time.Hour,
		CacheMax: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	for range 3 {
		ok, err := d.IsResolvable(ctx, testHostGood)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	assert.Equal(t, int32(1), reqs.Load())

	ok, err := d.IsResolvable(ctx, testHostNX)
	require.NoError(t, err)
	assert.False(t, ok)

	// The cache is full, so the previous answer is gone.
	_, err = d.IsResolvable(ctx, testHostGood)
	require.NoError(t, err)
	assert.Equal(t, int32(3), reqs.Load())
}
