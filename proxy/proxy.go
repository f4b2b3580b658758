// Package proxy implements a MITM proxy that blocks the requests matched by
// the filter lists.
package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/gomitmproxy"
)

// Session properties keys.
const (
	sessionPropKey    = "session"
	requestBlockedKey = "blocked"
)

// Metrics is an interface for collection of the proxy statistics.
type Metrics interface {
	// IncrementRequests increments the number of requests by the assumed
	// request type and the decision reason.
	IncrementRequests(ctx context.Context, t RequestType, r Reason)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncrementRequests implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementRequests(_ context.Context, _ RequestType, _ Reason) {}

// Config contains the MITM proxy configuration.
type Config struct {
	// Logger is used for logging the proxy events.  If nil, [slog.Default]
	// is used.
	Logger *slog.Logger

	// Filter decides which requests are blocked.  It must not be nil.
	Filter *Filter

	// Metrics is used for the collection of the proxy statistics.  If nil,
	// [EmptyMetrics] is used.
	Metrics Metrics

	// ProxyConfig is the configuration of the MITM proxy.  The handlers are
	// set by the server.
	ProxyConfig gomitmproxy.Config
}

// String returns the description of the configuration for logging.
func (c *Config) String() (s string) {
	pc := &c.ProxyConfig

	return fmt.Sprintf(
		"listen_addr=%s mitm=%t https=%t auth=%t api_host=%q",
		pc.ListenAddr,
		pc.MITMConfig != nil,
		pc.TLSConfig != nil,
		pc.Username != "",
		pc.APIHost,
	)
}

// Server is the filtering proxy server.
type Server struct {
	logger  *slog.Logger
	filter  *Filter
	metrics Metrics

	// proxyServer is the MITM proxy server instance.
	proxyServer *gomitmproxy.Proxy
}

// type check
var _ service.Interface = (*Server)(nil)

// NewServer creates a new instance of the MITM server.  c must not be nil.
func NewServer(c *Config) (s *Server, err error) {
	if c.Filter == nil {
		return nil, fmt.Errorf("filter: %w", errors.ErrNoValue)
	}

	s = &Server{
		logger:  c.Logger,
		filter:  c.Filter,
		metrics: c.Metrics,
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if s.metrics == nil {
		s.metrics = EmptyMetrics{}
	}

	s.logger.Info("initializing proxy server", "config", c.String())

	proxyConf := c.ProxyConfig
	proxyConf.OnRequest = s.onRequest
	proxyConf.OnResponse = s.onResponse
	proxyConf.OnConnect = s.onConnect
	s.proxyServer = gomitmproxy.NewProxy(proxyConf)

	return s, nil
}

// Start implements the [service.Interface] interface for *Server.
func (s *Server) Start(_ context.Context) (err error) {
	err = s.proxyServer.Start()
	if err != nil {
		return fmt.Errorf("starting proxy: %w", err)
	}

	return nil
}

// Shutdown implements the [service.Interface] interface for *Server.
func (s *Server) Shutdown(_ context.Context) (err error) {
	s.proxyServer.Close()

	return nil
}
