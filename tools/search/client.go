package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxResults = 5
	MaxResultsCap     = 10
	DefaultTimeout    = 30 * time.Second

	userAgent = "toolloop/1.0 (content discovery)"
	maxBody   = 4 << 20
)

// Endpoints are the API base URLs. Tests point them at httptest servers.
type Endpoints struct {
	Tavily  string
	GitHub  string
	Books   string
	YouTube string
	Reddit  string
	Arxiv   string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		Tavily:  "https://api.tavily.com",
		GitHub:  "https://api.github.com",
		Books:   "https://www.googleapis.com",
		YouTube: "https://www.googleapis.com",
		Reddit:  "https://www.reddit.com",
		Arxiv:   "http://export.arxiv.org",
	}
}

// Keys holds API credentials. Missing keys only disable the tools that need them.
type Keys struct {
	Tavily  string
	GitHub  string
	Books   string
	YouTube string
}

// Response is the common search envelope.
type Response[T any] struct {
	Success bool `json:"success"`
	Results []T  `json:"results"`
	Total   int  `json:"total"`
}

func respond[T any](results []T) Response[T] {
	if results == nil {
		results = []T{}
	}
	return Response[T]{Success: true, Results: results, Total: len(results)}
}

// Client talks to the search APIs.
type Client struct {
	keys      Keys
	endpoints Endpoints
	http      *http.Client
	log       zerolog.Logger

	defaultResults int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithEndpoints(e Endpoints) Option { return func(c *Client) { c.endpoints = e } }

func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// WithDefaultResults sets the result count used when a caller passes 0.
func WithDefaultResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.defaultResults = min(n, MaxResultsCap)
		}
	}
}

func NewClient(keys Keys, opts ...Option) *Client {
	c := &Client{
		keys:      keys,
		endpoints: DefaultEndpoints(),
		http:      &http.Client{Timeout: DefaultTimeout},
		log:       zerolog.Nop(),

		defaultResults: DefaultMaxResults,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StatusError is a non-2xx reply. Hint is the API-specific explanation, if any.
type StatusError struct {
	API    string
	Status int
	Hint   string
}

func (e *StatusError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.API, e.Hint)
	}
	return fmt.Sprintf("%s: HTTP error occurred: %d", e.API, e.Status)
}

// do sends req and returns the body of a 2xx reply. hints maps status codes
// to friendlier messages.
func (c *Client) do(req *http.Request, api string, hints map[int]string) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", api, err)
	}
	defer resp.Body.Close()
	c.log.Debug().Str("api", api).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("search request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, &StatusError{API: api, Status: resp.StatusCode, Hint: hints[resp.StatusCode]}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", api, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, api, base, path string, q url.Values, hdr http.Header, hints map[int]string) ([]byte, error) {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", api, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.do(req, api, hints)
}

// clampResults keeps n within 1..MaxResultsCap, treating 0 as the
// client's default.
func (c *Client) clampResults(n int) int {
	switch {
	case n == 0:
		return c.defaultResults
	case n < 1:
		return 1
	case n > MaxResultsCap:
		return MaxResultsCap
	}
	return n
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
