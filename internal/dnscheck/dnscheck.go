// Package dnscheck checks whether hostnames resolve, using DNS-over-HTTPS.
package dnscheck

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/miekg/dns"
)

// MimeType is the media type of DNS wire-format messages, see RFC 8484.
const MimeType = "application/dns-message"

// DefaultURL is the default DNS-over-HTTPS endpoint.
const DefaultURL = "https://cloudflare-dns.com/dns-query"

// Default values for [Config].
const (
	DefaultTimeout  = 5 * time.Second
	DefaultCacheTTL = 10 * time.Minute
	DefaultCacheMax = 10_000
)

// maxRespSize is the maximum size of a DNS message.
const maxRespSize = dns.MaxMsgSize

// ErrBadResponse is returned when the DNS-over-HTTPS server responds with
// something that isn't a DNS message.
const ErrBadResponse errors.Error = "bad doh response"

// Checker checks whether hostnames resolve.
type Checker interface {
	// IsResolvable returns true if host has at least one address.
	IsResolvable(ctx context.Context, host string) (ok bool, err error)
}

// Config is the configuration structure for [NewDoH].
type Config struct {
	// Logger is used for debug logging.  If nil, [slog.Default] is used.
	Logger *slog.Logger

	// Client is the HTTP client.  If nil, a client with [DefaultTimeout] is
	// used.
	Client *http.Client

	// URL is the DNS-over-HTTPS endpoint.  If empty, [DefaultURL] is used.
	URL string

	// CacheTTL is the time the answers are cached for.  If zero,
	// [DefaultCacheTTL] is used; if negative, the answers are not cached.
	CacheTTL time.Duration

	// CacheMax is the maximum number of cached answers.  If not positive,
	// [DefaultCacheMax] is used.
	CacheMax int
}

// cacheItem is a cached answer.
type cacheItem struct {
	expires time.Time
	ok      bool
}

// DoH is a [Checker] that sends the A queries to a DNS-over-HTTPS server as
// POST requests.  A hostname is resolvable if the response code is NOERROR and
// there is at least one answer.
type DoH struct {
	logger *slog.Logger
	client *http.Client

	// mu protects cache.
	mu    *sync.Mutex
	cache map[string]cacheItem

	url      string
	cacheTTL time.Duration
	cacheMax int
}

// type check
var _ Checker = (*DoH)(nil)

// NewDoH returns a new properly initialized *DoH.  c must not be nil.
func NewDoH(c *Config) (d *DoH) {
	d = &DoH{
		logger:   c.Logger,
		client:   c.Client,
		mu:       &sync.Mutex{},
		cache:    map[string]cacheItem{},
		url:      c.URL,
		cacheTTL: c.CacheTTL,
		cacheMax: c.CacheMax,
	}

	if d.logger == nil {
		d.logger = slog.Default()
	}

	if d.client == nil {
		d.client = &http.Client{Timeout: DefaultTimeout}
	}

	if d.url == "" {
		d.url = DefaultURL
	}

	if d.cacheTTL == 0 {
		d.cacheTTL = DefaultCacheTTL
	}

	if d.cacheMax <= 0 {
		d.cacheMax = DefaultCacheMax
	}

	return d
}

// IsResolvable implements the [Checker] interface for *DoH.
func (d *DoH) IsResolvable(ctx context.Context, host string) (ok bool, err error) {
	fqdn := dns.Fqdn(host)
	if ok, found := d.cached(fqdn); found {
		return ok, nil
	}

	resp, err := d.exchange(ctx, fqdn)
	if err != nil {
		return false, fmt.Errorf("resolving %q: %w", host, err)
	}

	ok = resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0
	d.logger.DebugContext(
		ctx,
		"resolved",
		"host", host,
		"rcode", dns.RcodeToString[resp.Rcode],
		"answers", len(resp.Answer),
	)

	d.store(fqdn, ok)

	return ok, nil
}

// exchange sends an A query for fqdn and returns the response.
func (d *DoH) exchange(ctx context.Context, fqdn string) (resp *dns.Msg, err error) {
	req := &dns.Msg{}
	req.SetQuestion(fqdn, dns.TypeA)
	req.RecursionDesired = true

	// See RFC 8484, section 4.1.
	req.Id = 0

	packed, err := req.Pack()
	if err != nil {
		return nil, fmt.Errorf("packing query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", MimeType)
	httpReq.Header.Set("Accept", MimeType)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("requesting: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, httpResp.Body.Close()) }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrBadResponse, httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxRespSize))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	resp = &dns.Msg{}
	err = resp.Unpack(body)
	if err != nil {
		return nil, fmt.Errorf("%w: unpacking: %w", ErrBadResponse, err)
	}

	if resp.Id != req.Id {
		return nil, fmt.Errorf("%w: id %d, want %d", ErrBadResponse, resp.Id, req.Id)
	}

	return resp, nil
}

// cached returns the cached answer for fqdn, if there is one.
func (d *DoH) cached(fqdn string) (ok, found bool) {
	if d.cacheTTL < 0 {
		return false, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	item, found := d.cache[fqdn]
	if !found {
		return false, false
	}

	if time.Now().After(item.expires) {
		delete(d.cache, fqdn)

		return false, false
	}

	return item.ok, true
}

// store caches the answer for fqdn.  The cache is cleared when it's full.
func (d *DoH) store(fqdn string, ok bool) {
	if d.cacheTTL < 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.cache) >= d.cacheMax {
		clear(d.cache)
	}

	d.cache[fqdn] = cacheItem{
		expires: time.Now().Add(d.cacheTTL),
		ok:      ok,
	}
}
