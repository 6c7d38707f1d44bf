package print

import (
	"fmt"
	"math"
	"sort"
)

// PageRange is an inclusive range of zero-based page indices requested for
// rendering. The whole-document request is the sentinel returned by AllPages.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// AllPages returns the sentinel range meaning "every page of the document".
func AllPages() PageRange {
	return PageRange{Start: 0, End: math.MaxInt32}
}

// IsAllPages reports whether the range is the whole-document sentinel.
func (r PageRange) IsAllPages() bool {
	return r.Start == 0 && r.End == math.MaxInt32
}

// Valid reports whether the range is non-negative and ordered.
func (r PageRange) Valid() bool {
	return r.Start >= 0 && r.End >= r.Start
}

func (r PageRange) String() string {
	if r.IsAllPages() {
		return "all"
	}
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// NormalizePageRanges sorts the ranges and merges overlapping or adjacent
// entries. Invalid ranges are dropped. The input slice is not modified.
func NormalizePageRanges(ranges []PageRange) []PageRange {
	valid := make([]PageRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].End < valid[j].End
	})
	out := valid[:1]
	for _, r := range valid[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
