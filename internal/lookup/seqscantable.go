package lookup

import (
	"github.com/krysearch/privacyfilters/rules"
)

// SeqScanTable is basically just a list of rules that are scanned
// sequentially.  Here we put the rules that are not eligible for other tables.
type SeqScanTable struct {
	storage []*rules.CompiledRule
	idxs    []int
}

// type check
var _ Table = (*SeqScanTable)(nil)

// NewSeqScanTable creates a new instance of the SeqScanTable.  storage must
// not be modified after that.
func NewSeqScanTable(storage []*rules.CompiledRule) (s *SeqScanTable) {
	return &SeqScanTable{
		storage: storage,
	}
}

// TryAdd implements the [Table] interface for *SeqScanTable.  Every rule is
// eligible.
func (s *SeqScanTable) TryAdd(_ *rules.CompiledRule, storageIdx int) (ok bool) {
	s.idxs = append(s.idxs, storageIdx)

	return true
}

// Match implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) Match(candidate string) (storageIdx int, ok bool) {
	for _, idx := range s.idxs {
		if s.storage[idx].Match(candidate) {
			return idx, true
		}
	}

	return -1, false
}

// MatchAll implements the [Table] interface for *SeqScanTable.
func (s *SeqScanTable) MatchAll(candidate string) (storageIdxs []int) {
	for _, idx := range s.idxs {
		if s.storage[idx].Match(candidate) {
			storageIdxs = append(storageIdxs, idx)
		}
	}

	return storageIdxs
}

// Len returns the number of rules in the table.
func (s *SeqScanTable) Len() (n int) {
	return len(s.idxs)
}
