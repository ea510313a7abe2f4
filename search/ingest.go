package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
	"golang.org/x/net/html"
)

const (
	defaultMaxPageSize = 5 << 20
	userAgent          = "longform/1.0 (+source ingestion)"
)

var excessiveLines = regexp.MustCompile(`\n{4,}`)

// Page is a fetched web page converted to markdown.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// Ingester fetches a page and converts its main content to markdown so it
// can be used as source material.
type Ingester struct {
	http      *http.Client
	converter *md.Converter
	maxSize   int64
	retry     retry.Config
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithFetchClient replaces the HTTP client used to fetch pages.
func WithFetchClient(hc *http.Client) IngesterOption {
	return func(i *Ingester) {
		i.http = hc
	}
}

// WithMaxPageSize caps the number of bytes read from a page.
func WithMaxPageSize(n int64) IngesterOption {
	return func(i *Ingester) {
		i.maxSize = n
	}
}

// WithIngestRetry sets the retry policy for page fetches.
func WithIngestRetry(cfg retry.Config) IngesterOption {
	return func(i *Ingester) {
		i.retry = cfg
	}
}

// NewIngester creates an Ingester with GitHub-flavored markdown output.
func NewIngester(opts ...IngesterOption) *Ingester {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())

	i := &Ingester{
		http:      &http.Client{Timeout: 30 * time.Second},
		converter: conv,
		maxSize:   defaultMaxPageSize,
		retry:     retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest fetches url and returns its main content as markdown.
func (i *Ingester) Ingest(ctx context.Context, url string) (*Page, error) {
	body, err := retry.Do(ctx, i.retry, func() ([]byte, error) {
		return i.fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}

	page, err := i.Convert(body)
	if err != nil {
		return nil, fmt.Errorf("search: convert %s: %w", url, err)
	}
	page.URL = url
	return page, nil
}

func (i *Ingester) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, longform.NewUserInputError("search: invalid url", 0, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := i.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, longform.NewStatusError(fmt.Sprintf("search: fetch %s: HTTP %d", url, resp.StatusCode), resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("search: read %s: %w", url, err)
	}
	if int64(len(body)) > i.maxSize {
		return nil, longform.NewUserInputError(fmt.Sprintf("search: %s exceeds %d bytes", url, i.maxSize), 0, nil)
	}
	return body, nil
}

// Convert turns an HTML document into markdown, preferring the main or
// article element and dropping page chrome otherwise.
func (i *Ingester) Convert(page []byte) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return nil, err
	}

	title := ""
	if n := findFirst(doc, isTag("title")); n != nil && n.FirstChild != nil {
		title = strings.TrimSpace(n.FirstChild.Data)
	}

	markdown, err := i.converter.ConvertString(renderNode(mainContent(doc)))
	if err != nil {
		return nil, err
	}
	markdown = tidyMarkdown(markdown)

	if title == "" {
		title = firstHeading(markdown)
	}
	return &Page{Title: title, Markdown: markdown}, nil
}

var chromeTags = map[string]bool{
	"nav": true, "header": true, "footer": true, "aside": true,
	"script": true, "style": true, "noscript": true, "iframe": true,
	"form": true, "button": true,
}

func mainContent(doc *html.Node) *html.Node {
	for _, match := range []func(*html.Node) bool{isTag("main"), isTag("article"), hasAttr("role", "main")} {
		if n := findFirst(doc, match); n != nil {
			return n
		}
	}

	var chrome []*html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && chromeTags[n.Data] {
			chrome = append(chrome, n)
			return false
		}
		return true
	})
	for _, n := range chrome {
		n.Parent.RemoveChild(n)
	}

	if body := findFirst(doc, isTag("body")); body != nil {
		return body
	}
	return doc
}

func isTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func hasAttr(key, val string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == key && a.Val == val {
				return true
			}
		}
		return false
	}
}

// walk visits nodes depth first; returning false skips a node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func tidyMarkdown(s string) string {
	s = excessiveLines.ReplaceAllString(s, "\n\n\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(t[2:])
		}
	}
	return ""
}
