package chat

import (
	"fmt"
	"sort"
	"strings"
)

// CitedAnswer is an answer text with its filtered, index-aligned source
// arrays: marker [j] in Text refers to position j-1 in each array.
type CitedAnswer struct {
	Text         string
	Publications []string
	Titles       []string
	IDs          []string
}

// marker is one inline citation occurrence in the answer text.
type marker struct {
	start, end int // byte offsets of "[n]" in the text, end exclusive
	index      int // the numeral n
}

// scanMarkers finds every "[n]" occurrence, in text order.
func scanMarkers(text string) []marker {
	var out []marker
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == i+1 || j >= len(text) || text[j] != ']' {
			continue
		}
		n := 0
		for _, d := range text[i+1 : j] {
			n = n*10 + int(d-'0')
		}
		out = append(out, marker{start: i, end: j + 1, index: n})
		i = j
	}
	return out
}

// AdjustCitations reconciles which sources the answer actually cites.
// Markers whose index points into the source arrays but which never appear
// in the text are dropped from the arrays, and the remaining markers are
// renumbered contiguously from 1, preserving relative order.
//
// Renumbering rewrites each marker exactly once from a position map, so a
// marker is never shifted twice and bracketed numerals outside the valid
// range are left alone. If the result would still violate the contiguous
// 1..n numbering, the original input is returned unchanged rather than
// corrupting citations.
func AdjustCitations(text string, publications, titles, ids []string) CitedAnswer {
	original := CitedAnswer{Text: text, Publications: publications, Titles: titles, IDs: ids}

	n := len(publications)
	if n > MaxPapers {
		n = MaxPapers
	}

	used := make(map[int]bool)
	for _, m := range scanMarkers(text) {
		if m.index >= 1 && m.index <= n {
			used[m.index] = true
		}
	}

	// Old index -> new index over the used sources, order preserved.
	renumber := make(map[int]int, len(used))
	next := 1
	for i := 1; i <= n; i++ {
		if used[i] {
			renumber[i] = next
			next++
		}
	}

	filtered := CitedAnswer{}
	for i := 1; i <= n; i++ {
		if !used[i] {
			continue
		}
		filtered.Publications = append(filtered.Publications, publications[i-1])
		filtered.Titles = append(filtered.Titles, titles[i-1])
		filtered.IDs = append(filtered.IDs, ids[i-1])
	}

	// Rebuild the text in one pass from the renumbering map.
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range scanMarkers(text) {
		b.WriteString(text[last:m.start])
		if newIdx, ok := renumber[m.index]; ok {
			fmt.Fprintf(&b, "[%d]", newIdx)
		} else {
			b.WriteString(text[m.start:m.end])
		}
		last = m.end
	}
	b.WriteString(text[last:])
	filtered.Text = b.String()

	if !validMarkers(filtered.Text, len(filtered.Publications)) {
		return original
	}
	return filtered
}

// validMarkers checks that the distinct marker indices in text are exactly
// 1..n with no gaps (an empty set is valid only for n == 0).
func validMarkers(text string, n int) bool {
	seen := make(map[int]bool)
	for _, m := range scanMarkers(text) {
		seen[m.index] = true
	}
	if len(seen) != n {
		return false
	}
	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for i, idx := range indices {
		if idx != i+1 {
			return false
		}
	}
	return true
}
