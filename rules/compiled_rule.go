package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/krysearch/privacyfilters/internal/ufnet"
)

// Masks of the supported filter list syntax.
const (
	// MaskDomainAnchor anchors the pattern to the beginning of the hostname
	// or any of its subdomains.
	MaskDomainAnchor = "||"

	// MaskPipe anchors the pattern to the beginning of the candidate when it
	// starts the rule, and to its end when it ends the rule.
	MaskPipe = "|"

	// MaskAnyCharacter matches any run of characters.
	MaskAnyCharacter = "*"

	// MaskSeparator matches a URL component boundary.
	MaskSeparator = "^"
)

// Regular expression equivalents of the masks.
const (
	// RegexDomainAnchor is an optional scheme, an optional "//", and an
	// optional run of "label." hostname prefixes, all anchored to the start
	// of the candidate.
	RegexDomainAnchor = `^(?:[A-Za-z][A-Za-z0-9+.\-]*:)?(?://)?(?:[^:/?#]*\.)?`

	// RegexStartAnchor anchors to the start of the candidate.
	RegexStartAnchor = `^`

	// RegexEndAnchor anchors to the end of the candidate.
	RegexEndAnchor = `$`

	// RegexAnyCharacter is the expansion of [MaskAnyCharacter].
	RegexAnyCharacter = `.*`

	// RegexSeparator is the expansion of [MaskSeparator]: one of "/", "?",
	// "=", "&", or the end of the candidate.
	RegexSeparator = `(?:[/?=&]|$)`
)

// shortcutBreakers are the characters that end a literal run of the pattern.
// The "$" is here since it is passed through to the regular expression.
const shortcutBreakers = MaskAnyCharacter + MaskSeparator + "$"

// regexMetacharacters are the characters that are passed through to the
// regular expression with a special meaning.  A pattern containing any of them
// has no reliable literal runs.
const regexMetacharacters = `\()[]{}|?+`

// CompiledRule is the executable form of a [RawRule].  CompiledRule is safe for
// concurrent use.
type CompiledRule struct {
	// Raw is the rule this one was compiled from.
	Raw *RawRule

	// regex is the compiled pattern.
	regex *regexp.Regexp

	// Shortcut is the longest literal run of the pattern.  Any candidate
	// matched by the rule contains it.  It is empty if the pattern has no
	// reliable literal runs.
	Shortcut string

	// Hostname is set for the rules of the "||hostname^" form.  A candidate
	// is matched by such a rule only if Hostname starts at the beginning of
	// the candidate's host part or right after a dot in it.
	Hostname string
}

// NewCompiledRule compiles raw into a matcher.  err is a *SyntaxError if the
// rule cannot be compiled.
func NewCompiledRule(raw *RawRule) (r *CompiledRule, err error) {
	pattern := raw.Text
	prefix, body, suffix := splitAnchors(pattern)
	re, err := regexp.Compile(prefix + "(?:" + bodyToRegexp(body) + ")" + suffix)
	if err != nil {
		return nil, &SyntaxError{Err: err, RuleText: pattern}
	}

	r = &CompiledRule{
		Raw:      raw,
		regex:    re,
		Shortcut: findShortcut(body),
	}

	if prefix == RegexDomainAnchor && suffix == "" {
		r.Hostname = findHostname(body)
	}

	return r, nil
}

// Match returns true if candidate is matched by the rule.
func (r *CompiledRule) Match(candidate string) (ok bool) {
	return r.regex.MatchString(candidate)
}

// Text returns the original rule text.
func (r *CompiledRule) Text() (s string) {
	return r.Raw.Text
}

// ListID returns the identifier of the filter list the rule comes from.
func (r *CompiledRule) ListID() (id string) {
	return r.Raw.ListID
}

// String implements the [fmt.Stringer] interface for *CompiledRule.
func (r *CompiledRule) String() (s string) {
	return fmt.Sprintf("%s (%s)", r.Raw, r.regex)
}

// splitAnchors splits pattern into the regexp prefix for the start anchor, the
// pattern body, and the regexp suffix for the end anchor.
func splitAnchors(pattern string) (prefix, body, suffix string) {
	switch {
	case strings.HasPrefix(pattern, MaskDomainAnchor):
		prefix, body = RegexDomainAnchor, pattern[len(MaskDomainAnchor):]
	case strings.HasPrefix(pattern, MaskPipe):
		prefix, body = RegexStartAnchor, pattern[len(MaskPipe):]
	default:
		body = pattern
	}

	if strings.HasSuffix(body, MaskPipe) {
		body, suffix = body[:len(body)-len(MaskPipe)], RegexEndAnchor
	}

	return prefix, body, suffix
}

// bodyToRegexp converts the pattern body into a regular expression.  Literal
// dots are escaped, the masks are expanded, and everything else is passed
// through.
func bodyToRegexp(body string) (re string) {
	var sb strings.Builder
	sb.Grow(len(body) * 2)

	for i := range len(body) {
		switch c := body[i]; c {
		case '.':
			sb.WriteString(`\.`)
		case MaskAnyCharacter[0]:
			sb.WriteString(RegexAnyCharacter)
		case MaskSeparator[0]:
			sb.WriteString(RegexSeparator)
		default:
			sb.WriteByte(c)
		}
	}

	return sb.String()
}

// findShortcut searches for the longest literal run of the body, that is the
// longest substring that does not contain any of:
//
//	*
//	^
//	$
//
// It returns an empty string if the body contains regexp metacharacters, since
// then literal runs may be optional or alternated away.
func findShortcut(body string) (shortcut string) {
	if strings.ContainsAny(body, regexMetacharacters) {
		return ""
	}

	for body != "" {
		i := strings.IndexAny(body, shortcutBreakers)
		if i == -1 {
			if len(body) > len(shortcut) {
				return body
			}

			break
		}

		if i > len(shortcut) {
			shortcut = body[:i]
		}

		body = body[i+1:]
	}

	return shortcut
}

// findHostname returns the hostname of a "hostname^" body or an empty string if
// body has another form.
func findHostname(body string) (hostname string) {
	hostname, ok := strings.CutSuffix(body, MaskSeparator)
	if !ok || !ufnet.IsDomainName(hostname) {
		return ""
	}

	return hostname
}
