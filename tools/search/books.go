package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type Book struct {
	Title         string   `json:"title"`
	Authors       string   `json:"authors"`
	PublishedDate string   `json:"published_date"`
	Description   string   `json:"description"`
	Rating        float64  `json:"rating,omitempty"`
	RatingCount   int      `json:"rating_count"`
	PageCount     int      `json:"page_count,omitempty"`
	Categories    []string `json:"categories"`
	InfoLink      string   `json:"info_link"`
	PreviewLink   string   `json:"preview_link"`
}

// BooksResponse adds the number of volumes dropped by the relevance filter.
type BooksResponse struct {
	Response[Book]
	Filtered int `json:"filtered_count"`
}

type volume struct {
	VolumeInfo struct {
		Title         string   `json:"title"`
		Authors       []string `json:"authors"`
		PublishedDate string   `json:"publishedDate"`
		Description   string   `json:"description"`
		AverageRating float64  `json:"averageRating"`
		RatingsCount  int      `json:"ratingsCount"`
		PageCount     int      `json:"pageCount"`
		Categories    []string `json:"categories"`
		InfoLink      string   `json:"infoLink"`
		PreviewLink   string   `json:"previewLink"`
	} `json:"volumeInfo"`
}

// BooksSearch queries Google Books and drops volumes that look unrelated to
// query. It over-fetches so the filter still leaves enough results.
func (c *Client) BooksSearch(ctx context.Context, query string, maxResults int) (BooksResponse, error) {
	n := c.clampResults(maxResults)
	q := url.Values{}
	q.Set("q", query)
	if c.keys.Books != "" {
		q.Set("key", c.keys.Books)
	}
	q.Set("maxResults", strconv.Itoa(min(n*3, 40)))
	q.Set("orderBy", "relevance")
	q.Set("printType", "books")

	body, err := c.get(ctx, "books_search", c.endpoints.Books, "/books/v1/volumes", q, nil, map[int]string{
		400: "Bad request. Check your search query.",
		401: "Authentication failed. Check your Google Books API key.",
		403: "API key invalid or quota exceeded.",
	})
	if err != nil {
		return BooksResponse{}, err
	}
	var data struct {
		Items []volume `json:"items"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return BooksResponse{}, fmt.Errorf("books_search: decode: %w", err)
	}

	var kept []Book
	filtered := 0
	for _, item := range data.Items {
		b := toBook(item)
		if !relevantBook(b, query) {
			filtered++
			continue
		}
		if len(kept) < n {
			kept = append(kept, b)
		}
	}
	return BooksResponse{Response: respond(kept), Filtered: filtered}, nil
}

func toBook(v volume) Book {
	vi := v.VolumeInfo
	b := Book{
		Title:         vi.Title,
		Authors:       strings.Join(vi.Authors, ", "),
		PublishedDate: vi.PublishedDate,
		Description:   vi.Description,
		Rating:        vi.AverageRating,
		RatingCount:   vi.RatingsCount,
		PageCount:     vi.PageCount,
		Categories:    vi.Categories,
		InfoLink:      vi.InfoLink,
		PreviewLink:   vi.PreviewLink,
	}
	if b.Title == "" {
		b.Title = "Unknown Title"
	}
	if b.Authors == "" {
		b.Authors = "Unknown Author"
	}
	if b.PublishedDate == "" {
		b.PublishedDate = "Unknown"
	}
	if b.Categories == nil {
		b.Categories = []string{}
	}
	if r := []rune(b.Description); len(r) > 300 {
		b.Description = string(r[:297]) + "..."
	}
	return b
}

var genericTitles = []string{"the architect", "the builder", "the engineer", "the republic"}

// relevantBook rejects volumes with a thin description or a generic title,
// and requires one query term (two for queries longer than two words) to
// appear in the title or description.
func relevantBook(b Book, query string) bool {
	if len(b.Description) < 50 {
		return false
	}
	title := strings.ToLower(b.Title)
	for _, g := range genericTitles {
		if strings.Contains(title, g) {
			return false
		}
	}
	terms := strings.Fields(strings.ToLower(query))
	need := 1
	if len(terms) > 2 {
		need = 2
	}
	text := title + " " + strings.ToLower(b.Description)
	matches := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			matches++
		}
	}
	return matches >= need
}
