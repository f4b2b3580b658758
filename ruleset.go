// Package privacyfilters compiles AdBlock-style filter lists into a rule set
// and decides whether URLs and hostnames are blocked by it.
package privacyfilters

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/krysearch/privacyfilters/filterlist"
	"github.com/krysearch/privacyfilters/internal/lookup"
	"github.com/krysearch/privacyfilters/rules"
)

// RuleSet is an immutable compiled collection of rules.  It is safe for
// concurrent use.  A nil *RuleSet is an empty set.
type RuleSet struct {
	// storage is the compiled rules in the source order.  The lookup tables
	// keep the indexes of the rules in it.
	storage []*rules.CompiledRule

	// lookupTables is the list of lookup tables which we need to speed up
	// the matching.  Note, that the order of lookup tables is important,
	// we try to add rules to the faster table first.  If it's not eligible
	// for that lookup table, we then proceed to a slower one.
	lookupTables []lookup.Table

	// dropped is the number of rules that failed to compile.
	dropped int
}

// Compile builds a rule set from the lists, in their order.  Rules that fail to
// compile and lines that cannot be read are skipped.  Compile doesn't close the
// lists.
func Compile(lists []filterlist.RuleList) (rs *RuleSet) {
	rs, _ = CompileLists(lists)

	return rs
}

// CompileLists is like [Compile] but also returns the errors of reading the
// lists.  rs is never nil and contains the rules read before the errors.
func CompileLists(lists []filterlist.RuleList) (rs *RuleSet, err error) {
	sc := filterlist.NewRuleStorageScanner(lists)

	var storage []*rules.CompiledRule
	dropped := 0
	for sc.Scan() {
		r, compErr := rules.NewCompiledRule(sc.Rule())
		if compErr != nil {
			dropped++

			continue
		}

		storage = append(storage, r)
	}

	rs = newRuleSet(storage)
	rs.dropped = dropped

	err = sc.Err()
	if err != nil {
		return rs, fmt.Errorf("reading lists: %w", err)
	}

	return rs, nil
}

// newRuleSet builds the lookup tables over storage.
func newRuleSet(storage []*rules.CompiledRule) (rs *RuleSet) {
	rs = &RuleSet{
		storage: storage,
		lookupTables: []lookup.Table{
			lookup.NewHostsTable(storage),
			lookup.NewShortcutsTable(storage),
			lookup.NewSeqScanTable(storage),
		},
	}

	for i, r := range storage {
		for _, tbl := range rs.lookupTables {
			if tbl.TryAdd(r, i) {
				break
			}
		}
	}

	return rs
}

// IsBlocked returns true if any rule of rs matches candidate.  It returns false
// for a nil or empty rs and for the candidates rejected by
// [ValidateCandidate].
func IsBlocked(rs *RuleSet, candidate string) (ok bool) {
	_, ok = rs.Match(candidate)

	return ok
}

// Len returns the number of rules in rs.
func (rs *RuleSet) Len() (n int) {
	if rs == nil {
		return 0
	}

	return len(rs.storage)
}

// Dropped returns the number of rules that failed to compile.
func (rs *RuleSet) Dropped() (n int) {
	if rs == nil {
		return 0
	}

	return rs.dropped
}

// Rules returns a copy of the compiled rules in the source order.
func (rs *RuleSet) Rules() (crs []*rules.CompiledRule) {
	if rs == nil {
		return nil
	}

	return slices.Clone(rs.storage)
}

// Match returns a rule matching candidate, if any.  The first table that finds
// a match stops the search, so the rule isn't necessarily the first matching
// one in the source order.
func (rs *RuleSet) Match(candidate string) (r *rules.CompiledRule, ok bool) {
	if rs == nil || ValidateCandidate(candidate) != nil {
		return nil, false
	}

	for _, tbl := range rs.lookupTables {
		if idx, found := tbl.Match(candidate); found {
			return rs.storage[idx], true
		}
	}

	return nil, false
}

// MatchAll returns all the rules matching candidate, in the source order.
func (rs *RuleSet) MatchAll(candidate string) (res []*rules.CompiledRule) {
	if rs == nil || ValidateCandidate(candidate) != nil {
		return nil
	}

	var idxs []int
	for _, tbl := range rs.lookupTables {
		idxs = append(idxs, tbl.MatchAll(candidate)...)
	}

	slices.Sort(idxs)
	for _, idx := range idxs {
		res = append(res, rs.storage[idx])
	}

	return res
}

// ErrInvalidCandidate is returned by [ValidateCandidate] for candidates that
// can never be matched.
const ErrInvalidCandidate errors.Error = "invalid candidate"

// ValidateCandidate returns an error if candidate is empty, contains ASCII
// control characters, or is not valid UTF-8.  Spaces are allowed.
func ValidateCandidate(candidate string) (err error) {
	if candidate == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCandidate)
	}

	for i := range len(candidate) {
		if c := candidate[i]; c < ' ' || c == 0x7f {
			return fmt.Errorf("%w: bad char %q at index %d", ErrInvalidCandidate, c, i)
		}
	}

	if !utf8.ValidString(candidate) {
		return fmt.Errorf("%w: not utf-8", ErrInvalidCandidate)
	}

	return nil
}
