package proxy

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/krysearch/privacyfilters/internal/ufnet"
)

// RequestType is the assumed type of the requested resource.  It selects the
// kind of the response to a blocked request.
type RequestType uint8

// RequestType values.
const (
	TypeOther RequestType = iota
	TypeDocument
	TypeScript
	TypeStylesheet
	TypeImage
	TypeMedia
	TypeFont
	TypeXHR
)

// String implements the [fmt.Stringer] interface for RequestType.
func (t RequestType) String() (s string) {
	switch t {
	case TypeDocument:
		return "document"
	case TypeScript:
		return "script"
	case TypeStylesheet:
		return "stylesheet"
	case TypeImage:
		return "image"
	case TypeMedia:
		return "media"
	case TypeFont:
		return "font"
	case TypeXHR:
		return "xhr"
	default:
		return "other"
	}
}

// Session contains the data of a single proxied request and its filtering
// state.
type Session struct {
	// HTTPRequest is the proxied request.
	HTTPRequest *http.Request

	// Decision is the filtering decision for the request.
	Decision *Decision

	// ID is the session identifier.
	ID string

	// Hostname is the hostname of the request.
	Hostname string

	// URL is the full URL of the request.  It's empty for the CONNECT
	// requests.
	URL string

	// RequestType is the assumed type of the request.
	RequestType RequestType
}

// NewSession creates a new instance of the Session struct and initializes it.
func NewSession(id string, req *http.Request) (s *Session) {
	s = &Session{
		HTTPRequest: req,
		ID:          id,
		RequestType: assumeRequestType(req),
	}

	if req.Method == http.MethodConnect {
		s.Hostname = hostFromAddr(req.Host)

		return s
	}

	s.URL = req.URL.String()
	s.Hostname = req.URL.Hostname()
	if s.Hostname == "" {
		s.Hostname = ufnet.ExtractHostname(s.URL)
	}

	return s
}

// assumeRequestType assumes the request type from the Accept header and, if
// that fails, from the URL.
func assumeRequestType(req *http.Request) (t RequestType) {
	if req.Method == http.MethodConnect {
		return TypeOther
	}

	if req.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return TypeXHR
	}

	t = assumeRequestTypeFromMediaType(req.Header.Get("Accept"))
	if t == TypeOther {
		t = assumeRequestTypeFromURL(req.URL)
	}

	return t
}

// assumeRequestTypeFromMediaType tries to detect the request type from the
// specified media type.
func assumeRequestTypeFromMediaType(mediaType string) (t RequestType) {
	mediaType, _, _ = strings.Cut(mediaType, ",")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}

	switch {
	case
		strings.HasPrefix(mediaType, "text/html"),
		strings.HasPrefix(mediaType, "application/xhtml"):
		return TypeDocument
	case strings.HasPrefix(mediaType, "text/css"):
		return TypeStylesheet
	case
		strings.HasPrefix(mediaType, "application/javascript"),
		strings.HasPrefix(mediaType, "application/x-javascript"),
		strings.HasPrefix(mediaType, "text/javascript"):
		return TypeScript
	case strings.HasPrefix(mediaType, "image/"):
		return TypeImage
	case
		strings.HasPrefix(mediaType, "application/font"),
		strings.HasPrefix(mediaType, "font/"):
		return TypeFont
	case
		strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"):
		return TypeMedia
	case strings.HasPrefix(mediaType, "application/json"):
		return TypeXHR
	default:
		return TypeOther
	}
}

// fileExtensions maps the file extensions to the request types.
var fileExtensions = map[string]RequestType{
	".js":    TypeScript,
	".mjs":   TypeScript,
	".jpg":   TypeImage,
	".jpeg":  TypeImage,
	".gif":   TypeImage,
	".png":   TypeImage,
	".webp":  TypeImage,
	".svg":   TypeImage,
	".ico":   TypeImage,
	".css":   TypeStylesheet,
	".mp3":   TypeMedia,
	".mp4":   TypeMedia,
	".webm":  TypeMedia,
	".ogg":   TypeMedia,
	".m3u8":  TypeMedia,
	".ttf":   TypeFont,
	".otf":   TypeFont,
	".woff":  TypeFont,
	".woff2": TypeFont,
	".json":  TypeXHR,
	".html":  TypeDocument,
	".htm":   TypeDocument,
}

// assumeRequestTypeFromURL assumes the request type from the file extension.
func assumeRequestTypeFromURL(u *url.URL) (t RequestType) {
	if u == nil {
		return TypeOther
	}

	return fileExtensions[strings.ToLower(path.Ext(u.Path))]
}

// hostFromAddr returns the host part of a "host:port" address.
func hostFromAddr(addr string) (host string) {
	u := &url.URL{Host: addr}

	return u.Hostname()
}
