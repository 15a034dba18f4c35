// Package client is the JSON HTTP client both pipelines use to talk to the
// article API. All persisted state flows through this client; the pipelines
// themselves keep nothing between runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"articleforge/internal/article"
)

// Client talks to the article API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the given base URL, e.g. "http://localhost:8000/api".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateArticleRequest mirrors the POST /articles payload.
type CreateArticleRequest struct {
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	SourceURL         string     `json:"source_url"`
	IsEnhanced        bool       `json:"is_enhanced"`
	OriginalArticleID *int64     `json:"original_article_id,omitempty"`
	References        []string   `json:"references,omitempty"`
	EnhancedAt        *time.Time `json:"enhanced_at,omitempty"`
	EnhancedBy        string     `json:"enhanced_by,omitempty"`
}

type apiEnvelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	Error   string            `json:"error"`
}

// CreateArticle posts a new article and returns the stored row.
func (c *Client) CreateArticle(ctx context.Context, req CreateArticleRequest) (article.Article, error) {
	var out article.Article
	if err := c.do(ctx, http.MethodPost, "/articles", req, &out); err != nil {
		return article.Article{}, err
	}
	return out, nil
}

// ListOriginals fetches every non-enhanced article, newest first.
func (c *Client) ListOriginals(ctx context.Context) ([]article.Article, error) {
	var out []article.Article
	if err := c.do(ctx, http.MethodGet, "/articles?original_only=true", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetArticle fetches one article by id.
func (c *Client) GetArticle(ctx context.Context, id int64) (article.Article, error) {
	var out article.Article
	if err := c.do(ctx, http.MethodGet, "/articles/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return article.Article{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (status %d): %w", method, path, resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if len(env.Errors) > 0 {
			detail, _ := json.Marshal(env.Errors)
			return fmt.Errorf("%s %s: api error %d: %s %s", method, path, resp.StatusCode, msg, detail)
		}
		return fmt.Errorf("%s %s: api error %d: %s", method, path, resp.StatusCode, msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}
