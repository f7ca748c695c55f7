package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client queries an external web-search endpoint and flattens the results
// into a text block for context injection. An unconfigured client answers
// every query with an empty string.
type Client struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration, maxResults int) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Query returns a plain-text summary of search results, or "" when the
// endpoint is unconfigured, fails, or finds nothing.
func (c *Client) Query(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if c.endpoint == "" || query == "" {
		return "", nil
	}

	reqURL := c.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build search request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("search response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Results []searchResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse search json failed: %w", err)
	}
	if len(parsed.Results) == 0 {
		return "", nil
	}

	results := parsed.Results
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(r.Title))
		if s := strings.TrimSpace(r.Snippet); s != "" {
			b.WriteString(s)
			b.WriteString("\n")
		}
		if u := strings.TrimSpace(r.URL); u != "" {
			b.WriteString(u)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
