// Package httpapi contains the HTTP API of the privacyfilters daemon.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/gorilla/mux"
	"github.com/krysearch/privacyfilters"
	"github.com/krysearch/privacyfilters/rules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Paths of the API handlers.
const (
	PathCheck   = "/v1/check"
	PathRefresh = "/v1/refresh"
	PathStatus  = "/v1/status"
	PathMetrics = "/metrics"
)

// readHeaderTimeout is the timeout of reading the request headers.
const readHeaderTimeout = 5 * time.Second

// Engine is the rule engine served by the API.  [*privacyfilters.Engine]
// implements it.
type Engine interface {
	// Match returns the rule that blocks candidate, if any.
	Match(ctx context.Context, candidate string) (r *rules.CompiledRule, ok bool)

	// Status returns the description of the active rule set.
	Status() (s *privacyfilters.Status)

	// Refresh reloads the lists and installs the new rule set.
	Refresh(ctx context.Context) (err error)
}

// Config is the configuration structure for [New].
type Config struct {
	// Logger is used for logging the requests.  If nil, [slog.Default] is
	// used.
	Logger *slog.Logger

	// Engine is the served engine.  It must not be nil.
	Engine Engine

	// Gatherer is the source of the metrics.  If nil, the metrics handler
	// isn't registered.
	Gatherer prometheus.Gatherer

	// ListenAddr is the address of the server.
	ListenAddr string

	// RefreshRate is the maximum number of refresh requests per second.  If
	// not positive, the refreshes aren't limited.
	RefreshRate float64

	// RefreshBurst is the maximum burst of refresh requests.
	RefreshBurst int
}

// Server is the HTTP API server.
type Server struct {
	logger  *slog.Logger
	engine  Engine
	limiter *rate.Limiter
	srv     *http.Server
}

// type check
var _ service.Interface = (*Server)(nil)

// New returns a new properly initialized *Server.  c must not be nil.
func New(c *Config) (s *Server) {
	s = &Server{
		logger:  c.Logger,
		engine:  c.Engine,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	if c.RefreshRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(c.RefreshRate), max(c.RefreshBurst, 1))
	}

	r := mux.NewRouter()
	r.HandleFunc(PathCheck, s.handleCheck).Methods(http.MethodGet)
	r.HandleFunc(PathRefresh, s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(PathStatus, s.handleStatus).Methods(http.MethodGet)
	if c.Gatherer != nil {
		r.Handle(PathMetrics, promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	r.Use(s.logRequest)

	s.srv = &http.Server{
		Addr:              c.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() (h http.Handler) {
	return s.srv.Handler
}

// Start implements the [service.Interface] interface for *Server.  It returns
// after the listener is bound.
func (s *Server) Start(ctx context.Context) (err error) {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}

	s.logger.InfoContext(ctx, "http api listening", "addr", l.Addr())

	go s.serve(ctx, l)

	return nil
}

// serve serves the API on l until the server is shut down.
func (s *Server) serve(ctx context.Context, l net.Listener) {
	defer slogutil.RecoverAndLog(ctx, s.logger)

	err := s.srv.Serve(l)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.ErrorContext(ctx, "serving http api", slogutil.KeyError, err)
	}
}

// Shutdown implements the [service.Interface] interface for *Server.
func (s *Server) Shutdown(ctx context.Context) (err error) {
	err = s.srv.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutting down http api: %w", err)
	}

	return nil
}

// logRequest is a middleware that logs the requests at the debug level.
func (s *Server) logRequest(h http.Handler) (wrapped http.Handler) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)

		s.logger.DebugContext(
			r.Context(),
			"http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"elapsed", time.Since(start),
		)
	})
}

// CheckResponse is the response of the check handler.
type CheckResponse struct {
	URL     string `json:"url"`
	Rule    string `json:"rule,omitempty"`
	List    string `json:"list,omitempty"`
	Blocked bool   `json:"blocked"`
}

// StatusResponse is the response of the status and refresh handlers.
type StatusResponse struct {
	Updated    *time.Time `json:"updated,omitempty"`
	Generation uint64     `json:"generation"`
	Rules      int        `json:"rules"`
	Dropped    int        `json:"dropped"`
}

// ErrorResponse is the response of the failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleCheck checks whether the candidate in the url query parameter is
// blocked.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get("url")
	if candidate == "" {
		s.writeJSON(w, r, http.StatusBadRequest, &ErrorResponse{Error: "url: no value"})

		return
	}

	resp := &CheckResponse{URL: candidate}
	if rule, ok := s.engine.Match(r.Context(), candidate); ok {
		resp.Blocked = true
		resp.Rule = rule.Text()
		resp.List = rule.ListID()
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

// handleRefresh reloads the lists.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()

		secs := int(math.Ceil(delay.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeJSON(w, r, http.StatusTooManyRequests, &ErrorResponse{Error: "too many refreshes"})

		return
	}

	err := s.engine.Refresh(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "refreshing from api", slogutil.KeyError, err)

		code := http.StatusInternalServerError
		if errors.Is(err, privacyfilters.ErrNoLists) {
			code = http.StatusBadGateway
		}

		s.writeJSON(w, r, code, &ErrorResponse{Error: err.Error()})

		return
	}

	s.writeJSON(w, r, http.StatusOK, newStatusResponse(s.engine.Status()))
}

// handleStatus returns the description of the active rule set.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, newStatusResponse(s.engine.Status()))
}

// newStatusResponse converts st into the API response.
func newStatusResponse(st *privacyfilters.Status) (resp *StatusResponse) {
	resp = &StatusResponse{
		Generation: st.Generation,
		Rules:      st.Rules,
		Dropped:    st.Dropped,
	}

	if !st.Updated.IsZero() {
		updated := st.Updated.UTC()
		resp.Updated = &updated
	}

	return resp
}

// writeJSON writes v as the JSON response with code.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.DebugContext(r.Context(), "writing response", slogutil.KeyError, err)
	}
}
