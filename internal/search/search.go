// Package search wraps the external search API used to find competitor
// articles for a topic.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config controls the search client.
type Config struct {
	APIKey   string
	Endpoint string
	Results  int
	Timeout  time.Duration
}

// Client queries the search API.
type Client struct {
	cfg  Config
	http *http.Client
}

// Result is one organic search result.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	OrganicResults []Result `json:"organic_results"`
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://serpapi.com/search"
	}
	if cfg.Results <= 0 {
		cfg.Results = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Search runs one query and returns the organic results.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", c.cfg.APIKey)
	params.Set("engine", "google")
	params.Set("num", strconv.Itoa(c.cfg.Results))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return sr.OrganicResults, nil
}

// FilterCompetitors keeps results that look like editorial content and do
// not belong to the excluded domain, returning at most max of them. A result
// qualifies when its URL mentions blog or article content, or its title
// reads like a guide or tutorial.
func FilterCompetitors(results []Result, excludeDomain string, max int) []Result {
	out := make([]Result, 0, max)
	excludeDomain = strings.ToLower(excludeDomain)
	for _, r := range results {
		if len(out) == max {
			break
		}
		link := strings.ToLower(r.Link)
		if excludeDomain != "" && strings.Contains(link, excludeDomain) {
			continue
		}
		title := strings.ToLower(r.Title)
		if strings.Contains(link, "blog") ||
			strings.Contains(link, "article") ||
			strings.Contains(title, "guide") ||
			strings.Contains(title, "tutorial") {
			out = append(out, r)
		}
	}
	return out
}
