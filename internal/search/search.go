// Package search wraps the external ranked-search backend and the
// knowledge-graph full-text lookup behind small request/response clients.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paperchat/paperchat/internal/log"
)

// Default request values applied by setDefaults.
const (
	DefaultLimit      = 5
	DefaultSortOption = "relevancy"
	DefaultSearchType = "default"
	DefaultMinDate    = 1900
	DefaultMaxDate    = 2999
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 10 * time.Second

// Request is a ranked-search query. Zero values for Limit, SortOption,
// SearchType and the date filters are replaced with the backend defaults.
type Request struct {
	Query             string
	FieldFilters      []string
	Limit             int
	Offset            int
	SortOption        string
	SearchType        string
	MinCitationFilter int
	MinDateFilter     int
	MaxDateFilter     int
	VenueFilters      []string
	SurveyFilter      *bool
}

func (r *Request) setDefaults() {
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.SortOption == "" {
		r.SortOption = DefaultSortOption
	}
	if r.SearchType == "" {
		r.SearchType = DefaultSearchType
	}
	if r.MinDateFilter <= 0 {
		r.MinDateFilter = DefaultMinDate
	}
	if r.MaxDateFilter <= 0 {
		r.MaxDateFilter = DefaultMaxDate
	}
}

// Paper is one ranked result.
type Paper struct {
	ID              string   `json:"neo4jID"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	Venue           string   `json:"venue"`
	Authors         []string `json:"authors"`
	Year            int      `json:"year"`
	Citations       int      `json:"n_citations"`
	Fields          []string `json:"field_list"`
	PublicationDate string   `json:"publication_date"`
}

// Response is the backend's ranked result page.
type Response struct {
	Papers     []Paper        `json:"papers"`
	HasNext    bool           `json:"hasNext"`
	Total      int            `json:"total"`
	Statistics map[string]int `json:"statistics"`
}

// PaperText is a paper's identity plus its resolved full text.
type PaperText struct {
	ID       string
	Title    string
	FullText string
}

// FullTextResolver resolves paper full texts from the knowledge-graph
// collaborator. Results come back in the order of the requested ids; papers
// whose text cannot be resolved are omitted.
type FullTextResolver interface {
	Resolve(ctx context.Context, ids []string) ([]PaperText, error)
}

// Config configures the Gateway.
type Config struct {
	// BaseURL of the search backend, e.g. "http://localhost:8000".
	BaseURL string

	// Timeout per call. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger log.Logger
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("search: BaseURL is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Gateway is the HTTP client for the ranked-search backend.
type Gateway struct {
	baseURL string
	client  *http.Client
	logger  log.Logger
}

// NewGateway creates a gateway from cfg.
func NewGateway(cfg Config) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}, nil
}

// Search runs a ranked query against the backend.
func (g *Gateway) Search(ctx context.Context, req Request) (*Response, error) {
	req.setDefaults()

	u := g.baseURL + "/search?" + encodeQuery(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling search backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	g.logger.Debug("search completed",
		"query", req.Query, "papers", len(out.Papers), "total", out.Total)
	return &out, nil
}

// encodeQuery builds the query string. List filters use repeated keys
// (field_filters=a&field_filters=b), the encoding the backend expects.
func encodeQuery(req Request) string {
	v := url.Values{}
	v.Set("query_string", req.Query)
	v.Set("limit", strconv.Itoa(req.Limit))
	v.Set("offset", strconv.Itoa(req.Offset))
	v.Set("sort_option", req.SortOption)
	v.Set("search_type", req.SearchType)
	v.Set("min_citation_filter", strconv.Itoa(req.MinCitationFilter))
	v.Set("min_date_filter", strconv.Itoa(req.MinDateFilter))
	v.Set("max_date_filter", strconv.Itoa(req.MaxDateFilter))
	for _, f := range req.FieldFilters {
		v.Add("field_filters", f)
	}
	for _, f := range req.VenueFilters {
		v.Add("venue_filters", f)
	}
	if req.SurveyFilter != nil {
		v.Set("survey_filter", strconv.FormatBool(*req.SurveyFilter))
	}
	return v.Encode()
}
