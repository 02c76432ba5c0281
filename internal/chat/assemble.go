package chat

import (
	"context"
	"fmt"

	"github.com/paperchat/paperchat/internal/log"
	"github.com/paperchat/paperchat/internal/search"
)

// Context-size constants. The model's context window is larger than
// maxContextTokens; the headroom absorbs the prompt scaffolding and the
// conversation history.
const (
	// MaxPapers caps how many retrieved papers ground one answer.
	MaxPapers = 5

	// maxContextTokens is the token budget shared by all paper blocks.
	maxContextTokens = 100000

	// docContextTokens is the larger budget for the follow-up generator,
	// which carries no retrieval blocks besides the one document.
	docContextTokens = 120000

	// charsPerToken approximates English text tokenization.
	charsPerToken = 4
)

// PerPaperCharBudget returns the character budget for each of k papers.
func PerPaperCharBudget(k int) int {
	return maxContextTokens / k * charsPerToken
}

// truncate cuts s to at most budget characters. The cut is a hard one and
// may split a sentence.
func truncate(s string, budget int) string {
	if len(s) > budget {
		return s[:budget]
	}
	return s
}

// Context is an assembled, citation-indexed set of paper blocks. Blocks,
// IDs and Titles are parallel: index i corresponds to citation marker
// [i+1].
type Context struct {
	Blocks []string
	IDs    []string
	Titles []string
}

// Empty reports whether retrieval produced no usable papers.
func (c *Context) Empty() bool {
	return c == nil || len(c.Blocks) == 0
}

// Searcher is the ranked-search dependency of the assembler.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Assembler turns a keyword query into bounded paper blocks ready for the
// grounded prompt.
type Assembler struct {
	searcher Searcher
	resolver search.FullTextResolver
	logger   log.Logger
}

// NewAssembler creates an assembler over the given search backend and
// full-text resolver.
func NewAssembler(searcher Searcher, resolver search.FullTextResolver, logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assembler{searcher: searcher, resolver: resolver, logger: logger}
}

// Assemble retrieves up to MaxPapers papers for req.Query and builds their
// citation-indexed blocks. Papers without resolvable full text contribute a
// title-only block. A query that matches nothing yields an empty context,
// not an error.
func (a *Assembler) Assemble(ctx context.Context, req search.Request) (*Context, error) {
	req.Limit = MaxPapers

	resp, err := a.searcher.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieving papers: %w", err)
	}

	papers := resp.Papers
	if len(papers) > MaxPapers {
		papers = papers[:MaxPapers]
	}
	if len(papers) == 0 {
		a.logger.Debug("retrieval returned no papers", "query", req.Query)
		return &Context{}, nil
	}

	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}

	texts, err := a.resolver.Resolve(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving full texts: %w", err)
	}
	fullText := make(map[string]string, len(texts))
	for _, t := range texts {
		fullText[t.ID] = t.FullText
	}

	// Budget scales with the actual paper count, not the cap.
	budget := PerPaperCharBudget(len(papers))

	out := &Context{
		Blocks: make([]string, 0, len(papers)),
		IDs:    make([]string, 0, len(papers)),
		Titles: make([]string, 0, len(papers)),
	}
	for i, p := range papers {
		block := fmt.Sprintf("Paper Number %d: %s", i+1, p.Title)
		if text := fullText[p.ID]; text != "" {
			block += " fullText: " + truncate(text, budget)
		}
		out.Blocks = append(out.Blocks, block)
		out.IDs = append(out.IDs, p.ID)
		out.Titles = append(out.Titles, p.Title)
	}

	a.logger.Debug("assembled context",
		"query", req.Query, "papers", len(papers), "char_budget", budget)
	return out, nil
}
