package chat

import (
	"reflect"
	"testing"
)

func TestAdjustCitations_DropsUnused(t *testing.T) {
	t.Parallel()

	pubs := []string{"block one", "block two", "block three"}
	titles := []string{"Paper One", "Paper Two", "Paper Three"}
	ids := []string{"p1", "p2", "p3"}

	text := "Attention weights tokens by relevance [1]. Scaled variants train faster [3]."
	got := AdjustCitations(text, pubs, titles, ids)

	want := "Attention weights tokens by relevance [1]. Scaled variants train faster [2]."
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if !reflect.DeepEqual(got.IDs, []string{"p1", "p3"}) {
		t.Errorf("IDs = %v, want [p1 p3]", got.IDs)
	}
	if !reflect.DeepEqual(got.Titles, []string{"Paper One", "Paper Three"}) {
		t.Errorf("Titles = %v", got.Titles)
	}
	if !reflect.DeepEqual(got.Publications, []string{"block one", "block three"}) {
		t.Errorf("Publications = %v", got.Publications)
	}
}

func TestAdjustCitations_AllUsed(t *testing.T) {
	t.Parallel()

	pubs := []string{"b1", "b2"}
	titles := []string{"T1", "T2"}
	ids := []string{"p1", "p2"}
	text := "First point [1]. Second point [2]."

	got := AdjustCitations(text, pubs, titles, ids)
	if got.Text != text {
		t.Errorf("Text changed: %q", got.Text)
	}
	if len(got.Publications) != 2 {
		t.Errorf("Publications = %v", got.Publications)
	}
}

func TestAdjustCitations_NoneUsed(t *testing.T) {
	t.Parallel()

	got := AdjustCitations("No citations here.",
		[]string{"b1", "b2"}, []string{"T1", "T2"}, []string{"p1", "p2"})
	if got.Text != "No citations here." {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Publications) != 0 || len(got.Titles) != 0 || len(got.IDs) != 0 {
		t.Errorf("arrays not emptied: %+v", got)
	}
}

func TestAdjustCitations_Idempotent(t *testing.T) {
	t.Parallel()

	pubs := []string{"b1", "b2", "b3", "b4", "b5"}
	titles := []string{"T1", "T2", "T3", "T4", "T5"}
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	text := "One [2] was cited, then [4], then [5]."

	first := AdjustCitations(text, pubs, titles, ids)
	second := AdjustCitations(first.Text, first.Publications, first.Titles, first.IDs)

	if second.Text != first.Text {
		t.Errorf("second pass changed text: %q -> %q", first.Text, second.Text)
	}
	if !reflect.DeepEqual(second.IDs, first.IDs) {
		t.Errorf("second pass changed IDs: %v -> %v", first.IDs, second.IDs)
	}
}

func TestAdjustCitations_OutOfOrderMarkers(t *testing.T) {
	t.Parallel()

	pubs := []string{"b1", "b2", "b3"}
	titles := []string{"T1", "T2", "T3"}
	ids := []string{"p1", "p2", "p3"}
	text := "Later work [3] built on the original [1]."

	got := AdjustCitations(text, pubs, titles, ids)
	if got.Text != "Later work [2] built on the original [1]." {
		t.Errorf("Text = %q", got.Text)
	}
	// Arrays stay in source order, not citation-appearance order.
	if !reflect.DeepEqual(got.IDs, []string{"p1", "p3"}) {
		t.Errorf("IDs = %v", got.IDs)
	}
}

func TestAdjustCitations_RepeatedMarker(t *testing.T) {
	t.Parallel()

	pubs := []string{"b1", "b2", "b3"}
	titles := []string{"T1", "T2", "T3"}
	ids := []string{"p1", "p2", "p3"}
	text := "Claim [2]. Another claim [2]. Third claim [3]."

	got := AdjustCitations(text, pubs, titles, ids)
	if got.Text != "Claim [1]. Another claim [1]. Third claim [2]." {
		t.Errorf("Text = %q", got.Text)
	}
	if !reflect.DeepEqual(got.IDs, []string{"p2", "p3"}) {
		t.Errorf("IDs = %v", got.IDs)
	}
}

func TestAdjustCitations_OutOfRangeMarkerFallsBack(t *testing.T) {
	t.Parallel()

	pubs := []string{"b1", "b2"}
	titles := []string{"T1", "T2"}
	ids := []string{"p1", "p2"}
	// [7] cannot be renumbered into a gapless 1..n set, so the original
	// must come back untouched.
	text := "Cited [1] and hallucinated [7]."

	got := AdjustCitations(text, pubs, titles, ids)
	if got.Text != text {
		t.Errorf("Text = %q, want original", got.Text)
	}
	if !reflect.DeepEqual(got.IDs, ids) {
		t.Errorf("IDs = %v, want original", got.IDs)
	}
}

func TestAdjustCitations_Alignment(t *testing.T) {
	t.Parallel()

	// Invariant: arrays stay the same length as each other, and every
	// marker in the output is within their bounds.
	pubs := []string{"b1", "b2", "b3", "b4", "b5"}
	titles := []string{"T1", "T2", "T3", "T4", "T5"}
	ids := []string{"p1", "p2", "p3", "p4", "p5"}

	texts := []string{
		"All five [1][2][3][4][5].",
		"Only odd ones [1] and [3] and [5].",
		"Just the last [5].",
		"Nothing cited.",
	}
	for _, text := range texts {
		got := AdjustCitations(text, pubs, titles, ids)
		if len(got.Publications) != len(got.Titles) || len(got.Titles) != len(got.IDs) {
			t.Fatalf("unaligned arrays for %q: %d/%d/%d",
				text, len(got.Publications), len(got.Titles), len(got.IDs))
		}
		for _, m := range scanMarkers(got.Text) {
			if m.index < 1 || m.index > len(got.Publications) {
				t.Errorf("marker [%d] out of range for %q (n=%d)",
					m.index, text, len(got.Publications))
			}
		}
	}
}

func TestScanMarkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []int
	}{
		{name: "plain", text: "a [1] b [2]", want: []int{1, 2}},
		{name: "adjacent groups", text: "claim [1][2]", want: []int{1, 2}},
		{name: "multi digit", text: "see [12]", want: []int{12}},
		{name: "not a marker", text: "array[i] and [] and [1a]", want: nil},
		{name: "unterminated", text: "open [1", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []int
			for _, m := range scanMarkers(tt.text) {
				got = append(got, m.index)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("scanMarkers(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
