package lookup

import (
	"math"
	"strings"

	"github.com/krysearch/privacyfilters/internal/fasthash"
	"github.com/krysearch/privacyfilters/rules"
)

const (
	shortcutLength = 5
)

// ShortcutsTable is a table that relies on the rule "shortcuts" to quickly
// find matching rules.  Here's how it works:
//
//  1. We take the rule's shortcut, the longest literal run of its pattern.
//  2. We take a part of it of length shortcutLength and put it to the
//     internal hashmap.
//  3. When we match a candidate, we take all substrings of length
//     shortcutLength from it and check if there're any rules in the hashmap.
//
// Note that only the rules with a long enough shortcut are eligible for this
// table.
type ShortcutsTable struct {
	storage []*rules.CompiledRule

	// lookupTable is a map where the key is the hash of the shortcut and
	// value is a list of rules' indexes.
	lookupTable map[uint32][]int

	// histogram helps us choose the best shortcut for the lookup table.
	histogram map[uint32]int
}

// type check
var _ Table = (*ShortcutsTable)(nil)

// NewShortcutsTable creates a new instance of the ShortcutsTable.  storage must
// not be modified after that.
func NewShortcutsTable(storage []*rules.CompiledRule) (s *ShortcutsTable) {
	return &ShortcutsTable{
		storage:     storage,
		lookupTable: map[uint32][]int{},
		histogram:   map[uint32]int{},
	}
}

// TryAdd implements the [Table] interface for *ShortcutsTable.
func (s *ShortcutsTable) TryAdd(r *rules.CompiledRule, storageIdx int) (ok bool) {
	sc := r.Shortcut
	if len(sc) < shortcutLength || isAnyURLShortcut(sc) {
		return false
	}

	// Find the applicable shortcut, the least used one.
	var hash uint32
	minCount := math.MaxInt32
	for i := 0; i <= len(sc)-shortcutLength; i++ {
		h := fasthash.Between(sc, i, i+shortcutLength)
		if count := s.histogram[h]; count < minCount {
			minCount = count
			hash = h
		}
	}

	s.histogram[hash] = minCount + 1
	s.lookupTable[hash] = append(s.lookupTable[hash], storageIdx)

	return true
}

// Match implements the [Table] interface for *ShortcutsTable.
func (s *ShortcutsTable) Match(candidate string) (storageIdx int, ok bool) {
	for i := 0; i <= len(candidate)-shortcutLength; i++ {
		hash := fasthash.Between(candidate, i, i+shortcutLength)
		for _, idx := range s.lookupTable[hash] {
			if s.storage[idx].Match(candidate) {
				return idx, true
			}
		}
	}

	return -1, false
}

// MatchAll implements the [Table] interface for *ShortcutsTable.
func (s *ShortcutsTable) MatchAll(candidate string) (storageIdxs []int) {
	for i := 0; i <= len(candidate)-shortcutLength; i++ {
		hash := fasthash.Between(candidate, i, i+shortcutLength)
		for _, idx := range s.lookupTable[hash] {
			// The same rule is found more than once when the candidate
			// has a repeating pattern.
			if s.storage[idx].Match(candidate) {
				storageIdxs = appendUnique(storageIdxs, idx)
			}
		}
	}

	return storageIdxs
}

// Len returns the number of rules in the table.
func (s *ShortcutsTable) Len() (n int) {
	for _, idxs := range s.lookupTable {
		n += len(idxs)
	}

	return n
}

// isAnyURLShortcut checks if the shortcut is found in too many URLs.  We'd
// better use another type of lookup table for this kind of rules.
func isAnyURLShortcut(sc string) (ok bool) {
	switch shLen := len(sc); {
	case
		shLen < len("ws://")+1 && strings.HasPrefix(sc, "ws:"),
		shLen < len("wss://")+1 && strings.HasPrefix(sc, "wss:"),
		shLen < len("https://")+1 && strings.HasPrefix(sc, "http"):
		return true
	default:
		return false
	}
}
