package lookup

import (
	"strings"

	"github.com/krysearch/privacyfilters/internal/fasthash"
	"github.com/krysearch/privacyfilters/rules"
)

const (
	// hostStartBreakers are the characters after which a host key may start.
	hostStartBreakers = ".:/"

	// hostEndBreakers are the characters that end a host key.
	hostEndBreakers = ":/?#=&"

	// hostSeparators are the characters that may follow a host key, in
	// addition to the end of the candidate.  These are the characters of
	// the "^" separator.
	hostSeparators = "/?=&"
)

// HostsTable is a lookup table for the "||hostname^" rules, by far the most
// common kind of rules in the lists.  The key is the hash of the hostname.
//
// A candidate is looked up by the hashes of all its substrings that start at
// the beginning of the candidate or right after ".", ":", or "/", and end right
// before a separator or at the end of the candidate.
type HostsTable struct {
	storage []*rules.CompiledRule

	lookupTable map[uint32][]int
}

// type check
var _ Table = (*HostsTable)(nil)

// NewHostsTable creates a new instance of the HostsTable.  storage must not be
// modified after that.
func NewHostsTable(storage []*rules.CompiledRule) (s *HostsTable) {
	return &HostsTable{
		storage:     storage,
		lookupTable: map[uint32][]int{},
	}
}

// TryAdd implements the [Table] interface for *HostsTable.
func (s *HostsTable) TryAdd(r *rules.CompiledRule, storageIdx int) (ok bool) {
	if r.Hostname == "" {
		return false
	}

	hash := fasthash.String(r.Hostname)
	s.lookupTable[hash] = append(s.lookupTable[hash], storageIdx)

	return true
}

// Match implements the [Table] interface for *HostsTable.
func (s *HostsTable) Match(candidate string) (storageIdx int, ok bool) {
	storageIdx = -1
	s.rangeKeys(candidate, func(idx int) (cont bool) {
		if s.storage[idx].Match(candidate) {
			storageIdx, ok = idx, true

			return false
		}

		return true
	})

	return storageIdx, ok
}

// MatchAll implements the [Table] interface for *HostsTable.
func (s *HostsTable) MatchAll(candidate string) (storageIdxs []int) {
	s.rangeKeys(candidate, func(idx int) (cont bool) {
		if s.storage[idx].Match(candidate) {
			storageIdxs = appendUnique(storageIdxs, idx)
		}

		return true
	})

	return storageIdxs
}

// Len returns the number of rules in the table.
func (s *HostsTable) Len() (n int) {
	for _, idxs := range s.lookupTable {
		n += len(idxs)
	}

	return n
}

// rangeKeys calls f for the storage index of each rule stored under any of the
// host keys of candidate, until f returns false.
func (s *HostsTable) rangeKeys(candidate string, f func(idx int) (cont bool)) {
	for start := 0; start < len(candidate); start++ {
		if start > 0 && strings.IndexByte(hostStartBreakers, candidate[start-1]) == -1 {
			continue
		}

		end := strings.IndexAny(candidate[start:], hostEndBreakers)
		if end == -1 {
			end = len(candidate)
		} else {
			end += start
			if strings.IndexByte(hostSeparators, candidate[end]) == -1 {
				continue
			}
		}

		if end == start {
			continue
		}

		for _, idx := range s.lookupTable[fasthash.Between(candidate, start, end)] {
			if !f(idx) {
				return
			}
		}
	}
}
