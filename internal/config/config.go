// Package config contains the configuration file of the privacyfilters
// daemon.
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/netip"
	"net/url"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/krysearch/privacyfilters"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/internal/dnscheck"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of the daemon.
type Config struct {
	// HTTP is the configuration of the HTTP API.
	HTTP *HTTPConfig `yaml:"http"`

	// Proxy is the configuration of the filtering proxy.
	Proxy *ProxyConfig `yaml:"proxy"`

	// DNS is the configuration of the DNS-over-HTTPS checks.
	DNS *DNSConfig `yaml:"dns"`

	// Log is the logging configuration.
	Log *LogConfig `yaml:"log"`

	// Lists are the filter lists.  If empty, [filterlist.DefaultSources] are
	// used.
	Lists []*filterlist.Source `yaml:"lists"`

	// RefreshInterval is the time between the rule set refreshes.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// RefreshTimeout is the timeout of a single refresh.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`

	// FetchTimeout is the timeout of a single list download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// MaxListSize is the maximum size of a downloaded list in bytes.
	MaxListSize int64 `yaml:"max_list_size"`

	// Parallel is the maximum number of lists downloaded at the same time.
	Parallel int `yaml:"parallel"`
}

// HTTPConfig is the configuration of the HTTP API.
type HTTPConfig struct {
	// ListenAddr is the address of the API server.  If empty, the API is
	// disabled.
	ListenAddr string `yaml:"listen_addr"`

	// RefreshRate is the maximum number of the refresh requests per second.
	RefreshRate float64 `yaml:"refresh_rate"`

	// RefreshBurst is the maximum burst of the refresh requests.
	RefreshBurst int `yaml:"refresh_burst"`
}

// ProxyConfig is the configuration of the filtering proxy.
type ProxyConfig struct {
	// ListenAddr is the address of the proxy.  If empty, the proxy is
	// disabled.
	ListenAddr string `yaml:"listen_addr"`

	// CACertPath is the path to the root certificate used for MITM.
	CACertPath string `yaml:"ca_cert"`

	// CAKeyPath is the path to the private key of the root certificate.
	CAKeyPath string `yaml:"ca_key"`

	// Username and Password enable the proxy authorization when set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// HTTPSHostname is the server name of the HTTPS proxy.  If empty, a
	// plain HTTP proxy is started.
	HTTPSHostname string `yaml:"https_hostname"`

	// Trusted are the domains that are never filtered.
	Trusted []string `yaml:"trusted"`

	// BlockUnresolvable makes the proxy block the hosts that don't resolve.
	BlockUnresolvable bool `yaml:"block_unresolvable"`
}

// DNSConfig is the configuration of the DNS-over-HTTPS checks.
type DNSConfig struct {
	// URL is the DNS-over-HTTPS endpoint.
	URL string `yaml:"url"`

	// CacheTTL is the time the answers are cached for.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Timeout is the timeout of a single query.
	Timeout time.Duration `yaml:"timeout"`

	// CacheSize is the maximum number of cached answers.
	CacheSize int `yaml:"cache_size"`
}

// LogConfig is the logging configuration.
type LogConfig struct {
	// File is the path to the log file.  If empty, stderr is used.
	File string `yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes before it's
	// rotated.
	MaxSize int `yaml:"max_size"`

	// MaxBackups is the maximum number of the rotated files to keep.
	MaxBackups int `yaml:"max_backups"`

	// Verbose enables the debug logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns the default configuration.
func Default() (c *Config) {
	return &Config{
		HTTP: &HTTPConfig{
			ListenAddr:   "127.0.0.1:8081",
			RefreshRate:  1.0 / 60,
			RefreshBurst: 1,
		},
		Proxy: &ProxyConfig{},
		DNS: &DNSConfig{
			URL:       dnscheck.DefaultURL,
			CacheTTL:  dnscheck.DefaultCacheTTL,
			Timeout:   dnscheck.DefaultTimeout,
			CacheSize: dnscheck.DefaultCacheMax,
		},
		Log: &LogConfig{
			MaxSize:    100,
			MaxBackups: 3,
		},
		RefreshInterval: privacyfilters.DefaultRefreshInterval,
		RefreshTimeout:  privacyfilters.DefaultRefreshTimeout,
		FetchTimeout:    filterlist.DefaultTimeout,
		MaxListSize:     filterlist.DefaultMaxSize,
		Parallel:        4,
	}
}

// Load reads the configuration file at path over the default configuration
// and validates the result.  Unknown fields are errors.
func Load(path string) (c *Config, err error) {
	// #nosec G304 -- Trust the path given by the operator.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return Parse(data)
}

// Parse decodes the configuration from data over the default configuration
// and validates the result.
func Parse(data []byte) (c *Config, err error) {
	c = Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err = dec.Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	err = c.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return c, nil
}

// Sources returns the configured lists or the default ones.
func (c *Config) Sources() (srcs []*filterlist.Source) {
	if len(c.Lists) == 0 {
		return filterlist.DefaultSources()
	}

	return c.Lists
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	var errs []error

	if c.HTTP == nil {
		errs = append(errs, fmt.Errorf("http: %w", errors.ErrNoValue))
	} else {
		errs = append(errs, c.HTTP.validate())
	}

	if c.Proxy == nil {
		errs = append(errs, fmt.Errorf("proxy: %w", errors.ErrNoValue))
	} else {
		errs = append(errs, c.Proxy.validate())
	}

	if c.DNS == nil {
		errs = append(errs, fmt.Errorf("dns: %w", errors.ErrNoValue))
	} else {
		errs = append(errs, c.DNS.validate())
	}

	if c.Log == nil {
		errs = append(errs, fmt.Errorf("log: %w", errors.ErrNoValue))
	}

	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh_interval: %w: %s", errNotPositive, c.RefreshInterval))
	}

	if c.RefreshTimeout <= 0 {
		errs = append(errs, fmt.Errorf("refresh_timeout: %w: %s", errNotPositive, c.RefreshTimeout))
	}

	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout: %w: %s", errNotPositive, c.FetchTimeout))
	}

	if c.MaxListSize <= 0 {
		errs = append(errs, fmt.Errorf("max_list_size: %w: %d", errNotPositive, c.MaxListSize))
	}

	if c.Parallel < 0 {
		errs = append(errs, fmt.Errorf("parallel: negative value %d", c.Parallel))
	}

	errs = append(errs, validateLists(c.Lists))

	return errors.Join(errs...)
}

// errNotPositive is returned when a value must be positive.
const errNotPositive errors.Error = "must be positive"

// validateLists returns an error if any of srcs is invalid or if the
// identifiers aren't unique.
func validateLists(srcs []*filterlist.Source) (err error) {
	var errs []error
	ids := make(map[string]struct{}, len(srcs))
	for i, src := range srcs {
		if err = src.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("lists: at index %d: %w", i, err))

			continue
		}

		if _, ok := ids[src.ID]; ok {
			errs = append(errs, fmt.Errorf("lists: at index %d: duplicate id %q", i, src.ID))
		}

		ids[src.ID] = struct{}{}
	}

	return errors.Join(errs...)
}

// validate returns an error if the HTTP API configuration is invalid.
func (c *HTTPConfig) validate() (err error) {
	if c.ListenAddr == "" {
		return nil
	}

	if _, err = netip.ParseAddrPort(c.ListenAddr); err != nil {
		return fmt.Errorf("http: listen_addr: %w", err)
	}

	if c.RefreshRate <= 0 {
		return fmt.Errorf("http: refresh_rate: %w: %v", errNotPositive, c.RefreshRate)
	}

	if c.RefreshBurst <= 0 {
		return fmt.Errorf("http: refresh_burst: %w: %d", errNotPositive, c.RefreshBurst)
	}

	return nil
}

// validate returns an error if the proxy configuration is invalid.
func (c *ProxyConfig) validate() (err error) {
	if c.ListenAddr == "" {
		return nil
	}

	if _, err = netip.ParseAddrPort(c.ListenAddr); err != nil {
		return fmt.Errorf("proxy: listen_addr: %w", err)
	}

	if c.CACertPath == "" || c.CAKeyPath == "" {
		return errors.Error("proxy: ca_cert and ca_key must be set")
	}

	if (c.Username == "") != (c.Password == "") {
		return errors.Error("proxy: username and password must be set together")
	}

	return nil
}

// validate returns an error if the DNS configuration is invalid.
func (c *DNSConfig) validate() (err error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("dns: url: %w", err)
	} else if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("dns: url: bad scheme %q", u.Scheme)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("dns: timeout: %w: %s", errNotPositive, c.Timeout)
	}

	return nil
}
