package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/paperchat/paperchat/internal/search"
)

type fakeSearcher struct {
	mu    sync.Mutex
	resp  *search.Response
	err   error
	calls int
	last  search.Request
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver struct {
	texts []search.PaperText
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, _ []string) ([]search.PaperText, error) {
	return f.texts, f.err
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{resp: &search.Response{Papers: []search.Paper{
		{ID: "p1", Title: "Attention Is All You Need"},
		{ID: "p2", Title: "BERT"},
		{ID: "p3", Title: "GPT-3"},
	}}}
	resolver := &fakeResolver{texts: []search.PaperText{
		{ID: "p1", FullText: "We propose the Transformer."},
		{ID: "p3", FullText: "Language models are few-shot learners."},
	}}

	a := NewAssembler(searcher, resolver, nil)
	got, err := a.Assemble(context.Background(), search.Request{Query: "attention mechanisms"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(got.Blocks) != 3 || len(got.IDs) != 3 || len(got.Titles) != 3 {
		t.Fatalf("context = %d/%d/%d entries, want 3 each",
			len(got.Blocks), len(got.IDs), len(got.Titles))
	}
	if got.Blocks[0] != "Paper Number 1: Attention Is All You Need fullText: We propose the Transformer." {
		t.Errorf("block 1 = %q", got.Blocks[0])
	}
	// p2 has no resolvable full text: title-only block.
	if got.Blocks[1] != "Paper Number 2: BERT" {
		t.Errorf("block 2 = %q", got.Blocks[1])
	}
	if got.IDs[2] != "p3" || got.Titles[2] != "GPT-3" {
		t.Errorf("parallel arrays misaligned: %v / %v", got.IDs, got.Titles)
	}

	if searcher.last.Limit != MaxPapers {
		t.Errorf("search limit = %d, want %d", searcher.last.Limit, MaxPapers)
	}
}

func TestAssemble_TokenBudget(t *testing.T) {
	t.Parallel()

	longText := strings.Repeat("x", maxContextTokens*charsPerToken)
	papers := []search.Paper{
		{ID: "p1", Title: "One"},
		{ID: "p2", Title: "Two"},
		{ID: "p3", Title: "Three"},
	}
	texts := make([]search.PaperText, len(papers))
	for i, p := range papers {
		texts[i] = search.PaperText{ID: p.ID, FullText: longText}
	}

	a := NewAssembler(&fakeSearcher{resp: &search.Response{Papers: papers}}, &fakeResolver{texts: texts}, nil)
	got, err := a.Assemble(context.Background(), search.Request{Query: "q"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	budget := PerPaperCharBudget(len(papers))
	for i, block := range got.Blocks {
		_, text, found := strings.Cut(block, " fullText: ")
		if !found {
			t.Fatalf("block %d has no full text: %q", i, block[:40])
		}
		if len(text) > budget {
			t.Errorf("block %d text = %d chars, budget %d", i, len(text), budget)
		}
	}
}

func TestPerPaperCharBudget(t *testing.T) {
	t.Parallel()

	// Budget scales with the actual paper count.
	if got := PerPaperCharBudget(1); got != 400000 {
		t.Errorf("budget(1) = %d, want 400000", got)
	}
	if got := PerPaperCharBudget(5); got != 80000 {
		t.Errorf("budget(5) = %d, want 80000", got)
	}
}

func TestAssemble_NoResults(t *testing.T) {
	t.Parallel()

	a := NewAssembler(&fakeSearcher{resp: &search.Response{}}, &fakeResolver{}, nil)
	got, err := a.Assemble(context.Background(), search.Request{Query: "nonexistent topic"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !got.Empty() {
		t.Errorf("context = %+v, want empty", got)
	}
}

func TestAssemble_SearchError(t *testing.T) {
	t.Parallel()

	a := NewAssembler(&fakeSearcher{err: fmt.Errorf("backend down")}, &fakeResolver{}, nil)
	if _, err := a.Assemble(context.Background(), search.Request{Query: "q"}); err == nil {
		t.Fatal("Assemble succeeded despite search failure")
	}
}

func TestAssemble_CapsAtMaxPapers(t *testing.T) {
	t.Parallel()

	papers := make([]search.Paper, 8)
	for i := range papers {
		papers[i] = search.Paper{ID: fmt.Sprintf("p%d", i+1), Title: fmt.Sprintf("Title %d", i+1)}
	}

	a := NewAssembler(&fakeSearcher{resp: &search.Response{Papers: papers}}, &fakeResolver{}, nil)
	got, err := a.Assemble(context.Background(), search.Request{Query: "q"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(got.Blocks) != MaxPapers {
		t.Errorf("blocks = %d, want %d", len(got.Blocks), MaxPapers)
	}
}
