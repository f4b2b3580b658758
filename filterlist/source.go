package filterlist

import (
	"fmt"
	"net/url"

	"github.com/AdguardTeam/golibs/errors"
)

// Base URLs of the default filter lists.
const (
	uBlockAssetsBase = "https://raw.githubusercontent.com/uBlockOrigin/uAssets/master/filters/"
	adGuardBase      = "https://filters.adtidy.org/extension/chromium/filters/"
)

// Source describes where the text of a filter list comes from.  Exactly one of
// URL and Path must be set.
type Source struct {
	// ID is the unique identifier of the list, used in diagnostics.
	ID string `yaml:"id"`

	// URL is the HTTP(S) URL of the list.
	URL string `yaml:"url"`

	// Path is the path to a local file with the list.
	Path string `yaml:"path"`
}

// Validate returns an error if the source is invalid.
func (s *Source) Validate() (err error) {
	if s == nil {
		return errors.Error("no source")
	}

	if s.ID == "" {
		return errors.Error("empty id")
	}

	switch {
	case s.URL != "" && s.Path != "":
		return fmt.Errorf("source %q: both url and path are set", s.ID)
	case s.Path != "":
		return nil
	case s.URL == "":
		return fmt.Errorf("source %q: neither url nor path is set", s.ID)
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("source %q: %w", s.ID, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source %q: bad url scheme %q", s.ID, u.Scheme)
	}

	return nil
}

// DefaultSources returns the uBlock Origin and AdGuard lists used when no
// sources are configured.
func DefaultSources() (srcs []*Source) {
	return []*Source{{
		ID:  "ublockAds",
		URL: uBlockAssetsBase + "ublock-filters-ads.txt",
	}, {
		ID:  "ublockPrivacy",
		URL: uBlockAssetsBase + "ublock-filters-privacy.txt",
	}, {
		ID:  "ublockBadware",
		URL: uBlockAssetsBase + "ublock-filters-badware.txt",
	}, {
		ID:  "ublockUnbreak",
		URL: uBlockAssetsBase + "ublock-filters-unbreak.txt",
	}, {
		ID:  "adguardTracking",
		URL: adGuardBase + "adguard-tracking.txt",
	}, {
		ID:  "adguardSocial",
		URL: adGuardBase + "adguard-social.txt",
	}, {
		ID:  "adguardAnnoyances",
		URL: adGuardBase + "adguard-annoyances.txt",
	}}
}
