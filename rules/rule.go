// Package rules contains the filtering rules: raw lines of the filter lists and
// their compiled, executable form.
package rules

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

const (
	// maskComment is the prefix of a comment line.
	maskComment = "!"

	// maskMetadata is the prefix of a metadata or header line, for example
	// "[Adblock Plus 2.0]".
	maskMetadata = "["
)

// SyntaxError is returned when a rule cannot be compiled into a matcher.
type SyntaxError struct {
	// Err is the underlying error.
	Err error

	// RuleText is the text of the rule.
	RuleText string
}

// type check
var _ error = (*SyntaxError)(nil)

// Error implements the error interface for *SyntaxError.
func (e *SyntaxError) Error() (msg string) {
	return fmt.Sprintf("syntax error: %s, rule: %s", e.Err, e.RuleText)
}

// type check
var _ errors.Wrapper = (*SyntaxError)(nil)

// Unwrap implements the [errors.Wrapper] interface for *SyntaxError.
func (e *SyntaxError) Unwrap() (unwrapped error) {
	return e.Err
}

// RawRule is a single non-empty line of filter list text that is neither a
// comment nor a metadata line.  RawRule must not be modified after creation.
type RawRule struct {
	// ListID is the identifier of the filter list this rule comes from.
	ListID string

	// Text is the trimmed text of the rule.
	Text string

	// Line is the 1-based line number of the rule in its list.
	Line int
}

// NewRawRule returns a raw rule for line.  It returns nil if the line is empty
// after trimming, a comment, or a metadata line.
func NewRawRule(line, listID string, lineNum int) (r *RawRule) {
	line = strings.TrimSpace(line)
	if line == "" || IsComment(line) {
		return nil
	}

	return &RawRule{
		ListID: listID,
		Text:   line,
		Line:   lineNum,
	}
}

// String implements the [fmt.Stringer] interface for *RawRule.
func (r *RawRule) String() (s string) {
	return fmt.Sprintf("%s:%d: %s", r.ListID, r.Line, r.Text)
}

// IsComment returns true if the trimmed line carries no rule: it's either a
// comment or a metadata line.
func IsComment(line string) (ok bool) {
	return strings.HasPrefix(line, maskComment) || strings.HasPrefix(line, maskMetadata)
}
