// Package search gathers background material for an article: web search
// through the Zhipu web search API and ingestion of single pages as
// markdown.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
	"github.com/spetersoncode/longform/state"
)

// DefaultEndpoint is the Zhipu web search endpoint.
const DefaultEndpoint = "https://open.bigmodel.cn/api/paas/v4/web_search"

const (
	maxCount          = 50
	summaryItemLength = 2000
)

// ErrNoAPIKey is returned by Search when the client has no API key.
var ErrNoAPIKey = errors.New("search: api key not configured")

// Searcher runs a single web search query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]state.SearchResult, error)
}

// Config holds the web search settings.
type Config struct {
	APIKey        string        `yaml:"api_key"`
	Endpoint      string        `yaml:"endpoint"`
	Engine        string        `yaml:"engine"`
	MaxResults    int           `yaml:"max_results"`
	ContentSize   string        `yaml:"content_size"`
	RecencyFilter string        `yaml:"recency_filter"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the settings used when a field is left empty.
func DefaultConfig() Config {
	return Config{
		Endpoint:      DefaultEndpoint,
		Engine:        "search_std",
		MaxResults:    10,
		ContentSize:   "medium",
		RecencyFilter: "noLimit",
		Timeout:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Engine == "" {
		c.Engine = d.Engine
	}
	if c.MaxResults <= 0 {
		c.MaxResults = d.MaxResults
	}
	if c.ContentSize == "" {
		c.ContentSize = d.ContentSize
	}
	if c.RecencyFilter == "" {
		c.RecencyFilter = d.RecencyFilter
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Client calls the Zhipu web search API.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  retry.Config
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for search calls.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a search client. Empty config fields take their defaults.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the client can make requests.
func (c *Client) Available() bool {
	return c != nil && c.cfg.APIKey != ""
}

type searchRequest struct {
	Query         string `json:"search_query"`
	Engine        string `json:"search_engine"`
	Intent        bool   `json:"search_intent"`
	Count         int    `json:"count"`
	ContentSize   string `json:"content_size"`
	RecencyFilter string `json:"search_recency_filter"`
}

type searchResponse struct {
	Results []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Content     string `json:"content"`
		Media       string `json:"media"`
		PublishDate string `json:"publish_date"`
	} `json:"search_result"`
}

// Search runs one query and returns at most limit results. A limit of 0
// uses the configured maximum.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]state.SearchResult, error) {
	if !c.Available() {
		return nil, ErrNoAPIKey
	}
	if limit <= 0 {
		limit = c.cfg.MaxResults
	}

	body, err := json.Marshal(searchRequest{
		Query:         query,
		Engine:        c.cfg.Engine,
		Count:         min(limit, c.cfg.MaxResults, maxCount),
		ContentSize:   c.cfg.ContentSize,
		RecencyFilter: c.cfg.RecencyFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("search: encode request: %w", err)
	}

	c.logger.Debug("web search", "query", query, "count", limit)

	resp, err := retry.Do(ctx, c.retry, func() (*searchResponse, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	results := make([]state.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, state.SearchResult{
			Title:       r.Title,
			URL:         r.Link,
			Content:     r.Content,
			Source:      r.Media,
			PublishDate: r.PublishDate,
		})
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("search: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		return nil, longform.NewStatusError(msg, resp.StatusCode, nil)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, longform.NewPermanentError("search: decode response", resp.StatusCode, err)
	}
	return &out, nil
}

// Summarize numbers the content of each result, truncating long entries.
// Results without content are skipped but keep their number.
func Summarize(results []state.SearchResult) string {
	var parts []string
	for i, r := range results {
		if r.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, truncate(r.Content, summaryItemLength)))
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Searcher = (*Client)(nil)
