package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Resolve implements FullTextResolver against the backend's full-text
// endpoint. Papers the backend cannot resolve are simply missing from the
// result; callers must not assume len(result) == len(ids).
func (g *Gateway) Resolve(ctx context.Context, ids []string) ([]PaperText, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	v := url.Values{}
	for _, id := range ids {
		v.Add("paper_ids", id)
	}
	u := g.baseURL + "/fulltext?" + v.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building full-text request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling full-text endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("full-text endpoint returned status %d", resp.StatusCode)
	}

	var raw []struct {
		ID       string `json:"neo4jID"`
		Title    string `json:"title"`
		FullText string `json:"fullText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding full-text response: %w", err)
	}

	out := make([]PaperText, 0, len(raw))
	for _, r := range raw {
		out = append(out, PaperText{ID: r.ID, Title: r.Title, FullText: r.FullText})
	}

	g.logger.Debug("full text resolved", "requested", len(ids), "resolved", len(out))
	return out, nil
}
