package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Paper struct {
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	Summary       string `json:"summary"`
	Category      string `json:"category"`
	PublishedDate string `json:"published_date"`
	URL           string `json:"url"`
	PDFURL        string `json:"pdf_url"`
}

// ArxivSearch queries the arXiv export API across all fields.
func (c *Client) ArxivSearch(ctx context.Context, query string, maxResults int) (Response[Paper], error) {
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(c.clampResults(maxResults)))
	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")

	body, err := c.get(ctx, "arxiv_search", c.endpoints.Arxiv, "/api/query", q, nil, nil)
	if err != nil {
		return Response[Paper]{}, err
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return Response[Paper]{}, fmt.Errorf("arxiv_search: failed to parse Atom response: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Items))
	for _, it := range feed.Items {
		p := Paper{
			Title:         oneLine(it.Title),
			Summary:       truncate(oneLine(it.Description), 300),
			Category:      primaryCategory(it),
			PublishedDate: it.Published,
			URL:           strings.TrimSpace(it.GUID),
		}
		if p.Title == "" {
			p.Title = "No title"
		}
		if p.Category == "" {
			p.Category = "Unknown"
		}
		if len(p.PublishedDate) > 10 {
			p.PublishedDate = p.PublishedDate[:10]
		}
		if p.PublishedDate == "" {
			p.PublishedDate = "Unknown"
		}
		if p.URL != "" {
			p.PDFURL = strings.Replace(p.URL, "/abs/", "/pdf/", 1) + ".pdf"
		}

		names := make([]string, 0, 3)
		for i, a := range it.Authors {
			if i == 3 {
				break
			}
			if a != nil {
				names = append(names, a.Name)
			}
		}
		p.Authors = strings.Join(names, ", ")
		if len(it.Authors) > 3 {
			p.Authors += " et al."
		}
		papers = append(papers, p)
	}
	return respond(papers), nil
}

// primaryCategory reads <arxiv:primary_category term=...>, falling back to
// the first Atom category.
func primaryCategory(it *gofeed.Item) string {
	for _, e := range it.Extensions["arxiv"]["primary_category"] {
		if term := e.Attrs["term"]; term != "" {
			return term
		}
	}
	if len(it.Categories) > 0 {
		return it.Categories[0]
	}
	return ""
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
