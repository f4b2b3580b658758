// Package lookup implements index structures that we use to improve matching
// speed of the rule sets.
package lookup

import "github.com/krysearch/privacyfilters/rules"

// Table is a common interface for all lookup tables.  The tables only index
// the rules; the rule itself is always the final arbiter, so a table never
// returns a rule that does not match the candidate.
type Table interface {
	// TryAdd attempts to add the rule with the given index in the storage to
	// the lookup table.  It returns true/false depending on whether the rule
	// is eligible for this lookup table.
	TryAdd(r *rules.CompiledRule, storageIdx int) (ok bool)

	// Match returns the storage index of the first matching rule this table
	// finds.  ok is false if there are none.
	Match(candidate string) (storageIdx int, ok bool)

	// MatchAll returns the storage indexes of all the matching rules of this
	// table, without duplicates.
	MatchAll(candidate string) (storageIdxs []int)
}

// appendUnique appends idx to idxs unless it's already there.  The slices are
// rather short, so the linear search is fine.
func appendUnique(idxs []int, idx int) (res []int) {
	for _, i := range idxs {
		if i == idx {
			return idxs
		}
	}

	return append(idxs, idx)
}
