// Package charset canonicalizes character ranges over 16-bit code units:
// sorting, merging overlapping/adjacent ranges, and optional simple case
// folding (spec §4.2). The DFA is scoped to 16-bit code units (spec §1
// Non-goals), so Range bounds are plain runes treated as uint16 values.
package charset

import "sort"

// Range is an inclusive [Start, End] span of code units.
type Range struct {
	Start, End rune
}

// Canonicalize sorts and merges ranges into a disjoint, non-adjacent,
// ascending list. When fold is true, each input range is first expanded to
// include its case-folded partners before merging (spec §4.2).
func Canonicalize(ranges []Range, fold bool) []Range {
	if len(ranges) == 0 {
		return nil
	}
	work := ranges
	if fold {
		work = foldExpand(ranges)
	}
	sorted := append([]Range(nil), work...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.Start <= cur.End+1 {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// foldExpand returns ranges unioned with the case-folded partner of every
// code unit they contain, using a locale-independent simple case-fold
// table fixed at compile time: an ASCII fast path plus unicode.SimpleFold
// for code units above ASCII (spec §4.2).
func foldExpand(ranges []Range) []Range {
	out := append([]Range(nil), ranges...)
	for _, r := range ranges {
		for c := r.Start; c <= r.End; c++ {
			if partner, ok := caseFold(c); ok {
				out = append(out, Range{Start: partner, End: partner})
			}
			if c == r.End {
				break // guard against rune overflow when End is the max rune
			}
		}
	}
	return out
}

// caseFold returns the single simple case-fold partner of c (its opposite
// case), if one exists. ASCII letters use a direct bit-flip fast path;
// everything else falls back to unicode.SimpleFold, taking the first
// partner that differs from c (simple case folding is a 2-or-3-cycle; for
// the DFA's purposes any one alternate form is sufficient, matching
// foldExpand's per-code-unit union).
func caseFold(c rune) (rune, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return c - ('a' - 'A'), true
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A'), true
	case c < 0x80:
		return 0, false
	default:
		return unicodeSimpleFold(c)
	}
}
