package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

var ErrMissingKey = errors.New("api key not configured")

type WebResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// WebSearch queries Tavily's /search endpoint.
func (c *Client) WebSearch(ctx context.Context, query string, maxResults int) (Response[WebResult], error) {
	if c.keys.Tavily == "" {
		return Response[WebResult]{}, fmt.Errorf("web_search: tavily %w", ErrMissingKey)
	}
	payload, err := json.Marshal(map[string]any{
		"api_key":             c.keys.Tavily,
		"query":               query,
		"max_results":         c.clampResults(maxResults),
		"search_depth":        "basic",
		"include_answer":      false,
		"include_raw_content": false,
	})
	if err != nil {
		return Response[WebResult]{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Tavily+"/search", bytes.NewReader(payload))
	if err != nil {
		return Response[WebResult]{}, fmt.Errorf("web_search: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "web_search", map[int]string{
		401: "Authentication failed. Check your Tavily API key.",
		429: "Rate limit exceeded.",
	})
	if err != nil {
		return Response[WebResult]{}, err
	}
	var data struct {
		Results []WebResult `json:"results"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return Response[WebResult]{}, fmt.Errorf("web_search: decode: %w", err)
	}
	return respond(data.Results), nil
}

const DefaultFetchChars = 8000

// Page is readable text extracted from a URL.
type Page struct {
	Success   bool   `json:"success"`
	URL       string `json:"url"`
	FinalURL  string `json:"final_url"`
	Title     string `json:"title,omitempty"`
	Byline    string `json:"byline,omitempty"`
	Extractor string `json:"extractor"`
	Text      string `json:"text"`
	Length    int    `json:"length"`
	Truncated bool   `json:"truncated"`
}

// Fetch downloads rawURL and extracts its readable text. HTML goes through
// readability; anything else is returned raw. maxChars <= 0 uses
// DefaultFetchChars.
func (c *Client) Fetch(ctx context.Context, rawURL string, maxChars int) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("web_fetch: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Page{}, fmt.Errorf("web_fetch: only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return Page{}, errors.New("web_fetch: missing domain in URL")
	}
	if maxChars <= 0 {
		maxChars = DefaultFetchChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("web_fetch: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("web_fetch: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &StatusError{API: "web_fetch", Status: resp.StatusCode}
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxBody)); err != nil {
		return Page{}, fmt.Errorf("web_fetch: read body: %w", err)
	}

	page := Page{Success: true, URL: rawURL, FinalURL: resp.Request.URL.String(), Extractor: "raw"}
	text := buf.String()
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") || looksLikeHTML(buf.Bytes()) {
		article, err := readability.FromReader(bytes.NewReader(buf.Bytes()), resp.Request.URL)
		if err == nil {
			page.Extractor = "readability"
			page.Title = article.Title
			page.Byline = article.Byline
			text = strings.TrimSpace(article.TextContent)
		}
	}

	page.Text = truncate(text, maxChars)
	page.Truncated = page.Text != text
	page.Length = len([]rune(page.Text))
	return page, nil
}

func looksLikeHTML(b []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}
