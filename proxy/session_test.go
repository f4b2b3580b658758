package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssumeRequestTypeFromMediaType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TypeDocument, assumeRequestTypeFromMediaType("text/html"))
	assert.Equal(t, TypeDocument, assumeRequestTypeFromMediaType(
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	))
	assert.Equal(t, TypeStylesheet, assumeRequestTypeFromMediaType("text/css"))
	assert.Equal(t, TypeScript, assumeRequestTypeFromMediaType("text/javascript"))
	assert.Equal(t, TypeImage, assumeRequestTypeFromMediaType("image/avif,image/webp,*/*"))
	assert.Equal(t, TypeOther, assumeRequestTypeFromMediaType("*/*"))
	assert.Equal(t, TypeOther, assumeRequestTypeFromMediaType(""))
}

func TestAssumeRequestTypeFromURL(t *testing.T) {
	t.Parallel()

	u, err := url.Parse("http://example.org/script.js")
	require.NoError(t, err)
	assert.Equal(t, TypeScript, assumeRequestTypeFromURL(u))

	u, err = url.Parse("http://example.org/STYLE.CSS?v=1")
	require.NoError(t, err)
	assert.Equal(t, TypeStylesheet, assumeRequestTypeFromURL(u))

	u, err = url.Parse("http://example.org/api")
	require.NoError(t, err)
	assert.Equal(t, TypeOther, assumeRequestTypeFromURL(u))

	assert.Equal(t, TypeOther, assumeRequestTypeFromURL(nil))
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	t.Run("get", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "http://ads.example:8080/banner.png?x=1", nil)
		s := NewSession("1", r)

		assert.Equal(t, "1", s.ID)
		assert.Equal(t, "ads.example", s.Hostname)
		assert.Equal(t, "http://ads.example:8080/banner.png?x=1", s.URL)
		assert.Equal(t, TypeImage, s.RequestType)
	})

	t.Run("xhr", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest(http.MethodGet, "http://api.example/data", nil)
		r.Header.Set("X-Requested-With", "XMLHttpRequest")

		s := NewSession("2", r)
		assert.Equal(t, TypeXHR, s.RequestType)
	})

	t.Run("connect", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{
			Method: http.MethodConnect,
			Host:   "tracker.example:443",
			URL:    &url.URL{Host: "tracker.example:443"},
			Header: http.Header{},
		}

		s := NewSession("3", r)
		assert.Equal(t, "tracker.example", s.Hostname)
		assert.Empty(t, s.URL)
		assert.Equal(t, TypeOther, s.RequestType)
	})
}
