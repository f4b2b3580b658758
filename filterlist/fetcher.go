package filterlist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// ErrBadStatus is returned when the list server responds with a non-2xx
	// status code.
	ErrBadStatus errors.Error = "bad status code"

	// ErrTooLarge is returned when the list is larger than the configured
	// maximum size.
	ErrTooLarge errors.Error = "list is too large"
)

// Default values for [DefaultFetcherConfig].
const (
	DefaultMaxSize   int64 = 32 * 1024 * 1024
	DefaultTimeout         = 1 * time.Minute
	DefaultUserAgent       = "privacyfilters"
)

// Fetcher loads filter lists.  Implementations must be safe for concurrent
// use.
type Fetcher interface {
	// Fetch returns the rule list described by src.  The caller closes the
	// list.
	Fetch(ctx context.Context, src *Source) (l RuleList, err error)
}

// FetchError is the error of loading a single list.
type FetchError struct {
	// Err is the underlying error.
	Err error

	// ListID is the identifier of the list that failed.
	ListID string
}

// type check
var _ error = (*FetchError)(nil)

// Error implements the error interface for *FetchError.
func (e *FetchError) Error() (msg string) {
	return fmt.Sprintf("fetching list %q: %s", e.ListID, e.Err)
}

// type check
var _ errors.Wrapper = (*FetchError)(nil)

// Unwrap implements the [errors.Wrapper] interface for *FetchError.
func (e *FetchError) Unwrap() (unwrapped error) {
	return e.Err
}

// DefaultFetcherConfig is the configuration for [DefaultFetcher].
type DefaultFetcherConfig struct {
	// Client is used for HTTP sources.  If nil, a client with
	// [DefaultTimeout] is used.
	Client *http.Client

	// UserAgent is sent with the HTTP requests.  If empty,
	// [DefaultUserAgent] is used.
	UserAgent string

	// MaxSize is the maximum size of a list in bytes.  If not positive,
	// [DefaultMaxSize] is used.
	MaxSize int64
}

// DefaultFetcher loads HTTP lists into memory and opens file lists from disk.
type DefaultFetcher struct {
	client    *http.Client
	userAgent string
	maxSize   int64
}

// type check
var _ Fetcher = (*DefaultFetcher)(nil)

// NewDefaultFetcher returns a new properly initialized *DefaultFetcher.  c may
// be nil.
func NewDefaultFetcher(c *DefaultFetcherConfig) (f *DefaultFetcher) {
	if c == nil {
		c = &DefaultFetcherConfig{}
	}

	f = &DefaultFetcher{
		client:    c.Client,
		userAgent: c.UserAgent,
		maxSize:   c.MaxSize,
	}

	if f.client == nil {
		f.client = &http.Client{Timeout: DefaultTimeout}
	}

	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}

	if f.maxSize <= 0 {
		f.maxSize = DefaultMaxSize
	}

	return f
}

// Fetch implements the [Fetcher] interface for *DefaultFetcher.
func (f *DefaultFetcher) Fetch(ctx context.Context, src *Source) (l RuleList, err error) {
	if src.Path != "" {
		return NewFileRuleList(src.ID, src.Path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	} else if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxSize)
	}

	return &StringRuleList{
		ID:        src.ID,
		RulesText: string(body),
	}, nil
}

// FetchAll loads all the sources concurrently, running at most parallel
// fetches at a time; parallel <= 0 means no limit.  lists contains the lists
// that were loaded, in the order of srcs.  failed contains an error for each
// source that could not be loaded.  A failing source never prevents the others
// from loading.
func FetchAll(
	ctx context.Context,
	f Fetcher,
	srcs []*Source,
	parallel int,
) (lists []RuleList, failed []*FetchError) {
	results := make([]RuleList, len(srcs))
	errs := make([]*FetchError, len(srcs))

	g := &errgroup.Group{}
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for i, src := range srcs {
		g.Go(func() (_ error) {
			l, err := f.Fetch(ctx, src)
			if err != nil {
				errs[i] = &FetchError{Err: err, ListID: src.ID}
			} else {
				results[i] = l
			}

			return nil
		})
	}

	// The goroutines above never return errors.
	_ = g.Wait()

	for i := range srcs {
		if results[i] != nil {
			lists = append(lists, results[i])
		} else if errs[i] != nil {
			failed = append(failed, errs[i])
		}
	}

	return lists, failed
}
