package main

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/gomitmproxy"
	"github.com/AdguardTeam/gomitmproxy/mitm"
	"github.com/krysearch/privacyfilters"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/internal/config"
	"github.com/krysearch/privacyfilters/internal/dnscheck"
	"github.com/krysearch/privacyfilters/internal/httpapi"
	"github.com/krysearch/privacyfilters/internal/metrics"
	"github.com/krysearch/privacyfilters/proxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout is the timeout of shutting down all services.
const shutdownTimeout = 10 * time.Second

// namedService is a service with the name for logging.
type namedService struct {
	svc  service.Interface
	name string
}

// newEngine returns the engine configured by conf.  m may be nil.
func newEngine(l *slog.Logger, conf *config.Config, m privacyfilters.Metrics) (e *privacyfilters.Engine) {
	fetcher := filterlist.NewDefaultFetcher(&filterlist.DefaultFetcherConfig{
		Client:  &http.Client{Timeout: conf.FetchTimeout},
		MaxSize: conf.MaxListSize,
	})

	return privacyfilters.NewEngine(&privacyfilters.EngineConfig{
		Logger:         l.With(slogutil.KeyPrefix, "engine"),
		Fetcher:        fetcher,
		Metrics:        m,
		Sources:        conf.Sources(),
		RefreshTimeout: conf.RefreshTimeout,
		Parallel:       conf.Parallel,
	})
}

// runDaemon starts the services configured by conf and waits until ctx is
// canceled.
func runDaemon(ctx context.Context, l *slog.Logger, conf *config.Config) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engineMetrics, err := metrics.NewEngine(metrics.Namespace, reg)
	if err != nil {
		return fmt.Errorf("engine metrics: %w", err)
	}

	engine := newEngine(l, conf, engineMetrics)

	svcs := []namedService{{
		svc: privacyfilters.NewRefresher(&privacyfilters.RefresherConfig{
			Logger: l.With(slogutil.KeyPrefix, "refresher"),
			Refresher: &memoryReporter{
				logger:    l.With(slogutil.KeyPrefix, "memory"),
				refresher: engine,
			},
			Interval: conf.RefreshInterval,
		}),
		name: "refresher",
	}}

	if conf.Proxy.ListenAddr != "" {
		var proxySrv *proxy.Server
		proxySrv, err = newProxy(l, conf, engine, reg)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}

		svcs = append(svcs, namedService{svc: proxySrv, name: "proxy"})
	}

	if conf.HTTP.ListenAddr != "" {
		svcs = append(svcs, namedService{
			svc: httpapi.New(&httpapi.Config{
				Logger:       l.With(slogutil.KeyPrefix, "httpapi"),
				Engine:       engine,
				Gatherer:     reg,
				ListenAddr:   conf.HTTP.ListenAddr,
				RefreshRate:  conf.HTTP.RefreshRate,
				RefreshBurst: conf.HTTP.RefreshBurst,
			}),
			name: "http api",
		})
	}

	for i, s := range svcs {
		err = s.svc.Start(ctx)
		if err != nil {
			err = fmt.Errorf("starting %s: %w", s.name, err)
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return errors.Join(err, engine.Close(), shutdownAll(shutdownCtx, svcs[:i]))
		}

		l.InfoContext(ctx, "started", "service", s.name)
	}

	<-ctx.Done()
	l.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return errors.Join(engine.Close(), shutdownAll(shutdownCtx, svcs))
}

// newProxy returns the filtering proxy configured by conf.
func newProxy(
	l *slog.Logger,
	conf *config.Config,
	engine *privacyfilters.Engine,
	reg prometheus.Registerer,
) (s *proxy.Server, err error) {
	pc := conf.Proxy

	var checker dnscheck.Checker
	if pc.BlockUnresolvable {
		checker = dnscheck.NewDoH(&dnscheck.Config{
			Logger:   l.With(slogutil.KeyPrefix, "dnscheck"),
			Client:   &http.Client{Timeout: conf.DNS.Timeout},
			URL:      conf.DNS.URL,
			CacheTTL: conf.DNS.CacheTTL,
			CacheMax: conf.DNS.CacheSize,
		})
	}

	proxyMetrics, err := metrics.NewProxy(metrics.Namespace, reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	proxyConf, err := newProxyConfig(pc)
	if err != nil {
		return nil, err
	}

	proxyLogger := l.With(slogutil.KeyPrefix, "proxy")

	return proxy.NewServer(&proxy.Config{
		Logger: proxyLogger,
		Filter: proxy.NewFilter(&proxy.FilterConfig{
			Logger:            proxyLogger,
			Matcher:           engine,
			Checker:           checker,
			Trusted:           pc.Trusted,
			BlockUnresolvable: pc.BlockUnresolvable,
		}),
		Metrics:     proxyMetrics,
		ProxyConfig: proxyConf,
	})
}

// newProxyConfig returns the configuration of the MITM proxy.
func newProxyConfig(pc *config.ProxyConfig) (c gomitmproxy.Config, err error) {
	addr, err := net.ResolveTCPAddr("tcp", pc.ListenAddr)
	if err != nil {
		return c, fmt.Errorf("listen address: %w", err)
	}

	mitmConfig, err := newMITMConfig(pc.CACertPath, pc.CAKeyPath)
	if err != nil {
		return c, err
	}

	var tlsConfig *tls.Config
	if pc.HTTPSHostname != "" {
		var proxyCert *tls.Certificate
		proxyCert, err = mitmConfig.GetOrCreateCert(pc.HTTPSHostname)
		if err != nil {
			return c, fmt.Errorf("https certificate for %q: %w", pc.HTTPSHostname, err)
		}

		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{*proxyCert},
			ServerName:   pc.HTTPSHostname,
			MinVersion:   tls.VersionTLS12,
		}
	}

	return gomitmproxy.Config{
		ListenAddr: addr,
		TLSConfig:  tlsConfig,
		Username:   pc.Username,
		Password:   pc.Password,
		APIHost:    "privacyfilters",
		MITMConfig: mitmConfig,
	}, nil
}

// newMITMConfig loads the root CA and returns the MITM configuration that
// issues certificates valid for a week.
func newMITMConfig(certPath, keyPath string) (c *mitm.Config, err error) {
	tlsCert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading root ca: %w", err)
	}

	privateKey, ok := tlsCert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("root ca key: unsupported type %T", tlsCert.PrivateKey)
	}

	x509c, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parsing root ca: %w", err)
	}

	c, err = mitm.NewConfig(x509c, privateKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating mitm config: %w", err)
	}

	c.SetValidity(7 * 24 * time.Hour)
	c.SetOrganization("privacyfilters")

	return c, nil
}
