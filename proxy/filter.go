package proxy

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/krysearch/privacyfilters/internal/dnscheck"
	"github.com/krysearch/privacyfilters/internal/ufnet"
	"github.com/krysearch/privacyfilters/rules"
	"golang.org/x/net/publicsuffix"
)

// Matcher finds the rule that blocks a candidate.  [privacyfilters.Engine]
// implements it.
type Matcher interface {
	// Match returns the rule that blocks candidate, if any.
	Match(ctx context.Context, candidate string) (r *rules.CompiledRule, ok bool)
}

// Reason is the reason of a filtering decision.
type Reason uint8

// Reason values.
const (
	// ReasonNotFiltered means that nothing blocks the request.
	ReasonNotFiltered Reason = iota

	// ReasonTrusted means that the host is trusted and isn't filtered.
	ReasonTrusted

	// ReasonRule means that a filtering rule blocks the request.
	ReasonRule

	// ReasonUnresolvable means that the host doesn't resolve.
	ReasonUnresolvable
)

// String implements the [fmt.Stringer] interface for Reason.
func (r Reason) String() (s string) {
	switch r {
	case ReasonNotFiltered:
		return "not_filtered"
	case ReasonTrusted:
		return "trusted"
	case ReasonRule:
		return "rule"
	case ReasonUnresolvable:
		return "unresolvable"
	default:
		return "unknown"
	}
}

// Decision is the result of filtering a request.
type Decision struct {
	// Rule is the blocking rule.  It's only set for [ReasonRule].
	Rule *rules.CompiledRule

	// Reason is the reason of the decision.
	Reason Reason
}

// Blocked returns true if the request must be blocked.
func (d *Decision) Blocked() (ok bool) {
	return d.Reason == ReasonRule || d.Reason == ReasonUnresolvable
}

// FilterConfig is the configuration structure for [NewFilter].
type FilterConfig struct {
	// Logger is used for debug logging.  If nil, [slog.Default] is used.
	Logger *slog.Logger

	// Matcher finds the blocking rules.  It must not be nil.
	Matcher Matcher

	// Checker checks whether hosts resolve.  It's only used when
	// BlockUnresolvable is true.
	Checker dnscheck.Checker

	// Trusted are the domains that are never filtered, along with their
	// subdomains.  The leading "www." is ignored.
	Trusted []string

	// BlockUnresolvable makes the filter block the hosts that don't resolve.
	BlockUnresolvable bool
}

// Filter decides whether requests are blocked.  Filter is safe for concurrent
// use.
type Filter struct {
	logger  *slog.Logger
	matcher Matcher
	checker dnscheck.Checker
	trusted map[string]struct{}

	blockUnresolvable bool
}

// NewFilter returns a new properly initialized *Filter.  c must not be nil.
func NewFilter(c *FilterConfig) (f *Filter) {
	f = &Filter{
		logger:            c.Logger,
		matcher:           c.Matcher,
		checker:           c.Checker,
		trusted:           make(map[string]struct{}, len(c.Trusted)),
		blockUnresolvable: c.BlockUnresolvable && c.Checker != nil,
	}

	if f.logger == nil {
		f.logger = slog.Default()
	}

	for _, d := range c.Trusted {
		f.trusted[normalizeHost(d)] = struct{}{}
	}

	return f
}

// Check returns the decision for a request to host.  rawURL is the full URL of
// the request, it's empty for the CONNECT requests.
func (f *Filter) Check(ctx context.Context, host, rawURL string) (d *Decision) {
	host = normalizeHost(host)
	if f.IsTrusted(host) {
		return &Decision{Reason: ReasonTrusted}
	}

	if rawURL != "" {
		if r, ok := f.matcher.Match(ctx, rawURL); ok {
			return &Decision{Rule: r, Reason: ReasonRule}
		}
	}

	if host == "" {
		return &Decision{Reason: ReasonNotFiltered}
	}

	if r, ok := f.matcher.Match(ctx, host); ok {
		return &Decision{Rule: r, Reason: ReasonRule}
	}

	if f.blockUnresolvable && !isIP(host) {
		ok, err := f.checker.IsResolvable(ctx, host)
		if err != nil {
			// Don't break the browsing because of the resolver errors.
			f.logger.DebugContext(ctx, "checking host", "host", host, slogutil.KeyError, err)
		} else if !ok {
			return &Decision{Reason: ReasonUnresolvable}
		}
	}

	return &Decision{Reason: ReasonNotFiltered}
}

// IsTrusted returns true if host or its registrable domain is trusted.
func (f *Filter) IsTrusted(host string) (ok bool) {
	host = normalizeHost(host)
	if host == "" || len(f.trusted) == 0 {
		return false
	}

	if _, ok = f.trusted[host]; ok {
		return true
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}

	for h := host; h != etld1; {
		_, h, _ = strings.Cut(h, ".")
		if _, ok = f.trusted[h]; ok {
			return true
		}
	}

	return false
}

// normalizeHost lowercases host and removes the "www." prefix and the trailing
// dot.
func normalizeHost(host string) (norm string) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	return ufnet.TrimWWW(host)
}

// isIP returns true if host is an IP address.
func isIP(host string) (ok bool) {
	_, err := netip.ParseAddr(strings.Trim(host, "[]"))

	return err == nil
}
