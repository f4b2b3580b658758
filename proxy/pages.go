package proxy

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
)

// blockedPageHTML is the template of the page served instead of the blocked
// documents.
const blockedPageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Blocked: {{.Hostname}}</title>
</head>
<body>
<h1>Request blocked</h1>
<p>The request to <b>{{.Hostname}}</b> was blocked.</p>
{{- if .RuleText}}
<p>Rule: <code>{{.RuleText}}</code> from the list <code>{{.ListID}}</code>.</p>
{{- else}}
<p>Reason: {{.Reason}}.</p>
{{- end}}
</body>
</html>
`

var blockedPageTmpl = template.Must(template.New("blocked").Parse(blockedPageHTML))

// blockedPageParameters are the parameters of the blocked page template.
type blockedPageParameters struct {
	Hostname string
	RuleText string
	ListID   string
	Reason   string
}

// buildBlockedPage builds blocked page content.
func buildBlockedPage(ctx context.Context, l *slog.Logger, session *Session) (page []byte) {
	params := &blockedPageParameters{
		Hostname: session.Hostname,
		Reason:   session.Decision.Reason.String(),
	}

	if r := session.Decision.Rule; r != nil {
		params.RuleText = r.Text()
		params.ListID = r.ListID()
	}

	data := &bytes.Buffer{}
	if err := blockedPageTmpl.Execute(data, params); err != nil {
		l.ErrorContext(ctx, "building blocked page", slogutil.KeyError, err)

		return nil
	}

	return data.Bytes()
}

// newBlockedResponse creates an HTTP response for a blocked request.  The
// documents get an HTML page, the other resources get an empty response.
func newBlockedResponse(ctx context.Context, l *slog.Logger, session *Session) (res *http.Response) {
	if session.RequestType != TypeDocument {
		res = proxyutil.NewResponse(http.StatusForbidden, nil, session.HTTPRequest)
		res.Close = true

		return res
	}

	page := buildBlockedPage(ctx, l, session)
	res = proxyutil.NewResponse(http.StatusForbidden, bytes.NewReader(page), session.HTTPRequest)
	res.Close = true
	res.ContentLength = int64(len(page))
	res.Header.Set("Content-Type", "text/html; charset=utf-8")

	return res
}
