// Package filterlist contains the filter lists: their sources, loading, and
// scanning into raw rules.
package filterlist

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// RuleList is a single filter list.
type RuleList interface {
	// GetID returns the rule list identifier.
	GetID() (id string)

	// NewScanner creates a new scanner that reads the list contents.
	NewScanner() (sc *RuleScanner)

	// Close closes the list and frees its resources.
	io.Closer
}

// StringRuleList is a string-based rule list.
type StringRuleList struct {
	// ID is the rule list identifier.
	ID string

	// RulesText is the text of the list, one rule per line.
	RulesText string
}

// type check
var _ RuleList = (*StringRuleList)(nil)

// GetID implements the [RuleList] interface for *StringRuleList.
func (l *StringRuleList) GetID() (id string) {
	return l.ID
}

// NewScanner implements the [RuleList] interface for *StringRuleList.
func (l *StringRuleList) NewScanner() (sc *RuleScanner) {
	return NewRuleScanner(strings.NewReader(l.RulesText), l.ID)
}

// Close implements the [RuleList] interface for *StringRuleList.
func (l *StringRuleList) Close() (err error) {
	return nil
}

// FileRuleList is a file-based rule list.  It keeps the file open until Close
// is called.
type FileRuleList struct {
	// mu protects file from concurrent seeks.
	mu *sync.Mutex

	file *os.File

	id string
}

// type check
var _ RuleList = (*FileRuleList)(nil)

// NewFileRuleList opens the file at path and returns a rule list reading from
// it.
func NewFileRuleList(id, path string) (l *FileRuleList, err error) {
	// #nosec G304 -- Trust the paths from the configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening list %q: %w", id, err)
	}

	return &FileRuleList{
		mu:   &sync.Mutex{},
		file: f,
		id:   id,
	}, nil
}

// GetID implements the [RuleList] interface for *FileRuleList.
func (l *FileRuleList) GetID() (id string) {
	return l.id
}

// NewScanner implements the [RuleList] interface for *FileRuleList.  The
// scanner starts from the beginning of the file; only one scanner of a
// FileRuleList may be in use at a time.
func (l *FileRuleList) NewScanner() (sc *RuleScanner) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sc = NewRuleScanner(l.file, l.id)
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		sc.err = fmt.Errorf("seeking to start: %w", err)
	}

	return sc
}

// Close implements the [RuleList] interface for *FileRuleList.
func (l *FileRuleList) Close() (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
