package filterlist

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/krysearch/privacyfilters/rules"
)

// RuleStorageScanner scans multiple RuleScanner instances one after another,
// so that the rules come out in list order and, inside each list, in line
// order.
type RuleStorageScanner struct {
	// Scanners is the list of list scanners backing this combined scanner.
	Scanners []*RuleScanner

	currentScanner    *RuleScanner
	currentScannerIdx int
}

// NewRuleStorageScanner returns a scanner over all the given lists.
func NewRuleStorageScanner(lists []RuleList) (s *RuleStorageScanner) {
	scanners := make([]*RuleScanner, 0, len(lists))
	for _, l := range lists {
		scanners = append(scanners, l.NewScanner())
	}

	return &RuleStorageScanner{
		Scanners: scanners,
	}
}

// Scan advances to the next rule.  It returns false when every scanner is
// exhausted.
func (s *RuleStorageScanner) Scan() (ok bool) {
	if len(s.Scanners) == 0 {
		return false
	}

	if s.currentScanner == nil {
		s.currentScannerIdx = 0
		s.currentScanner = s.Scanners[s.currentScannerIdx]
	}

	for {
		if s.currentScanner.Scan() {
			return true
		}

		if s.currentScannerIdx == len(s.Scanners)-1 {
			return false
		}

		s.currentScannerIdx++
		s.currentScanner = s.Scanners[s.currentScannerIdx]
	}
}

// Rule returns the most recent rule read by Scan.
func (s *RuleStorageScanner) Rule() (r *rules.RawRule) {
	if s.currentScanner == nil {
		return nil
	}

	return s.currentScanner.Rule()
}

// Err returns the read errors of the underlying scanners, if any.
func (s *RuleStorageScanner) Err() (err error) {
	var errs []error
	for _, sc := range s.Scanners {
		if scErr := sc.Err(); scErr != nil {
			errs = append(errs, fmt.Errorf("list %q: %w", sc.listID, scErr))
		}
	}

	return errors.Join(errs...)
}
