package filterlist

import (
	"bufio"
	"io"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/krysearch/privacyfilters/rules"
)

// RuleScanner reads the filter list text line by line and returns the raw
// rules, skipping empty, comment, and metadata lines.  Lines have no length
// limit.
type RuleScanner struct {
	reader *bufio.Reader

	// err is the first non-EOF error encountered while reading.
	err error

	// currentRule is the rule returned by the last successful Scan.
	currentRule *rules.RawRule

	// listID is the identifier of the list the scanner reads.
	listID string

	// lineNum is the number of the last line read, starting from 1.
	lineNum int
}

// NewRuleScanner returns a new *RuleScanner that reads the rules of the list
// with the given identifier from r.
func NewRuleScanner(r io.Reader, listID string) (s *RuleScanner) {
	return &RuleScanner{
		reader: bufio.NewReader(r),
		listID: listID,
	}
}

// Scan advances the scanner to the next rule, which will then be available
// through the Rule method.  It returns false when the scan stops, either by
// reaching the end of the input or an error.
func (s *RuleScanner) Scan() (ok bool) {
	if s.err != nil {
		return false
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			// Don't use the partially read line.
			s.err = err
			s.currentRule = nil

			return false
		}

		if line != "" {
			s.lineNum++
			if r := rules.NewRawRule(line, s.listID, s.lineNum); r != nil {
				s.currentRule = r

				return true
			}
		}

		if err != nil {
			s.currentRule = nil

			return false
		}
	}
}

// Rule returns the most recent rule read by Scan.
func (s *RuleScanner) Rule() (r *rules.RawRule) {
	return s.currentRule
}

// Err returns the first non-EOF error encountered by the scanner.
func (s *RuleScanner) Err() (err error) {
	return s.err
}
