package proxy

import (
	"context"
	"net"
	"net/http"

	"github.com/AdguardTeam/gomitmproxy"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
)

// onRequest handles the outgoing HTTP requests.
func (s *Server) onRequest(sess *gomitmproxy.Session) (req *http.Request, resp *http.Response) {
	r := sess.Request()
	session := NewSession(sess.ID(), r)
	sess.SetProp(sessionPropKey, session)

	if r.Method == http.MethodConnect {
		// The CONNECT targets are checked in onConnect.
		return nil, nil
	}

	ctx := r.Context()
	session.Decision = s.filter.Check(ctx, session.Hostname, session.URL)
	s.metrics.IncrementRequests(ctx, session.RequestType, session.Decision.Reason)

	if !session.Decision.Blocked() {
		return r, nil
	}

	s.logBlocked(ctx, session)

	// Mark this request as blocked so that the response isn't processed.
	sess.SetProp(requestBlockedKey, true)

	return nil, newBlockedResponse(ctx, s.logger, session)
}

// onResponse blocks the redirects to the blocked URLs.
func (s *Server) onResponse(sess *gomitmproxy.Session) (resp *http.Response) {
	if _, ok := sess.GetProp(requestBlockedKey); ok {
		return nil
	}

	res := sess.Response()
	if res == nil {
		return nil
	}

	loc, err := res.Location()
	if err != nil {
		// No redirect.
		return nil
	}

	v, ok := sess.GetProp(sessionPropKey)
	if !ok {
		s.logger.Error("session not found", "id", sess.ID())

		return nil
	}

	session, ok := v.(*Session)
	if !ok {
		s.logger.Error("session not found", "id", sess.ID(), "type", v)

		return nil
	}

	ctx := session.HTTPRequest.Context()
	d := s.filter.Check(ctx, loc.Hostname(), loc.String())
	if !d.Blocked() {
		return nil
	}

	redirected := &Session{
		HTTPRequest: session.HTTPRequest,
		Decision:    d,
		ID:          session.ID,
		Hostname:    loc.Hostname(),
		URL:         loc.String(),
		RequestType: session.RequestType,
	}

	s.metrics.IncrementRequests(ctx, redirected.RequestType, d.Reason)
	s.logBlocked(ctx, redirected)

	return newBlockedResponse(ctx, s.logger, redirected)
}

// onConnect blocks the tunnels to the blocked hosts.
func (s *Server) onConnect(sess *gomitmproxy.Session, _ string, addr string) (conn net.Conn) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ctx := context.Background()
	if r := sess.Request(); r != nil {
		ctx = r.Context()
	}

	session := &Session{
		HTTPRequest: sess.Request(),
		Decision:    s.filter.Check(ctx, host, ""),
		ID:          sess.ID(),
		Hostname:    host,
	}

	s.metrics.IncrementRequests(ctx, TypeOther, session.Decision.Reason)
	if !session.Decision.Blocked() {
		return nil
	}

	s.logBlocked(ctx, session)

	return &proxyutil.NoopConn{}
}

// logBlocked logs the blocked session at the debug level.
func (s *Server) logBlocked(ctx context.Context, session *Session) {
	d := session.Decision
	if d.Rule != nil {
		s.logger.DebugContext(
			ctx,
			"blocked",
			"id", session.ID,
			"host", session.Hostname,
			"url", session.URL,
			"rule", d.Rule.Text(),
			"list", d.Rule.ListID(),
		)

		return
	}

	s.logger.DebugContext(
		ctx,
		"blocked",
		"id", session.ID,
		"host", session.Hostname,
		"url", session.URL,
		"reason", d.Reason,
	)
}
