package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
lists:
  - id: ads
    url: https://lists.example/ads.txt
  - id: local
    path: /etc/privacyfilters/local.txt
refresh_interval: 1h
fetch_timeout: 30s
parallel: 2
http:
  listen_addr: 127.0.0.1:9000
  refresh_rate: 0.5
  refresh_burst: 2
proxy:
  listen_addr: 0.0.0.0:8080
  ca_cert: ca.crt
  ca_key: ca.key
  trusted:
    - bank.example
  block_unresolvable: true
dns:
  url: https://dns.example/dns-query
  cache_ttl: 1m
log:
  verbose: true
`

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	assert.Equal(t, []*filterlist.Source{{
		ID:  "ads",
		URL: "https://lists.example/ads.txt",
	}, {
		ID:   "local",
		Path: "/etc/privacyfilters/local.txt",
	}}, c.Sources())

	assert.Equal(t, time.Hour, c.RefreshInterval)
	assert.Equal(t, 30*time.Second, c.FetchTimeout)
	assert.Equal(t, 2, c.Parallel)

	assert.Equal(t, "127.0.0.1:9000", c.HTTP.ListenAddr)
	assert.Equal(t, 0.5, c.HTTP.RefreshRate)
	assert.Equal(t, 2, c.HTTP.RefreshBurst)

	assert.Equal(t, []string{"bank.example"}, c.Proxy.Trusted)
	assert.True(t, c.Proxy.BlockUnresolvable)

	assert.Equal(t, "https://dns.example/dns-query", c.DNS.URL)
	assert.Equal(t, time.Minute, c.DNS.CacheTTL)

	// Defaults are kept for the omitted fields.
	def := config.Default()
	assert.Equal(t, def.RefreshTimeout, c.RefreshTimeout)
	assert.Equal(t, def.DNS.Timeout, c.DNS.Timeout)
	assert.Equal(t, def.Log.MaxSize, c.Log.MaxSize)
	assert.True(t, c.Log.Verbose)
}

func TestParse_empty(t *testing.T) {
	t.Parallel()

	c, err := config.Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, config.Default(), c)
	assert.Equal(t, filterlist.DefaultSources(), c.Sources())
}

func TestParse_errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		in         string
		wantErrMsg string
	}{{
		name:       "unknown_field",
		in:         "unknown: 1\n",
		wantErrMsg: "field unknown not found",
	}, {
		name:       "both_url_and_path",
		in:         "lists:\n  - id: a\n    url: https://a.example\n    path: a.txt\n",
		wantErrMsg: `both url and path are set`,
	}, {
		name:       "no_id",
		in:         "lists:\n  - url: https://a.example\n",
		wantErrMsg: "empty id",
	}, {
		name:       "duplicate_id",
		in:         "lists:\n  - id: a\n    path: a.txt\n  - id: a\n    path: b.txt\n",
		wantErrMsg: `duplicate id "a"`,
	}, {
		name:       "bad_list_scheme",
		in:         "lists:\n  - id: a\n    url: ftp://a.example\n",
		wantErrMsg: `bad url scheme "ftp"`,
	}, {
		name:       "no_ca",
		in:         "proxy:\n  listen_addr: 127.0.0.1:8080\n",
		wantErrMsg: "ca_cert and ca_key must be set",
	}, {
		name:       "only_username",
		in:         "proxy:\n  listen_addr: 127.0.0.1:8080\n  ca_cert: a\n  ca_key: b\n  username: u\n",
		wantErrMsg: "username and password must be set together",
	}, {
		name:       "bad_http_addr",
		in:         "http:\n  listen_addr: localhost\n",
		wantErrMsg: "http: listen_addr",
	}, {
		name:       "bad_dns_scheme",
		in:         "dns:\n  url: udp://1.1.1.1\n",
		wantErrMsg: `dns: url: bad scheme "udp"`,
	}, {
		name:       "zero_interval",
		in:         "refresh_interval: 0s\n",
		wantErrMsg: "refresh_interval: must be positive",
	}, {
		name:       "null_section",
		in:         "log: null\n",
		wantErrMsg: "log: no value",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(tc.in))
			require.Error(t, err)

			assert.Contains(t, err.Error(), tc.wantErrMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)

	assert.Len(t, c.Lists, 2)

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_Validate_nil(t *testing.T) {
	t.Parallel()

	var c *config.Config
	assert.ErrorIs(t, c.Validate(), errors.ErrNoValue)
}
