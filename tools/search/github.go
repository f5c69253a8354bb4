package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

type Repo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Stars       int64    `json:"stars"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	LastUpdated string   `json:"last_updated"`
}

// GitHubSearch lists repositories matching query, most starred first. The
// token is optional; without it the unauthenticated rate limit applies.
func (c *Client) GitHubSearch(ctx context.Context, query string, maxResults int) (Response[Repo], error) {
	hdr := http.Header{}
	hdr.Set("Accept", "application/vnd.github+json")
	hdr.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.keys.GitHub != "" {
		hdr.Set("Authorization", "Bearer "+c.keys.GitHub)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(c.clampResults(maxResults)))

	body, err := c.get(ctx, "github_search", c.endpoints.GitHub, "/search/repositories", q, hdr, map[int]string{
		401: "Authentication failed. Check your GitHub token.",
		403: "Rate limit exceeded or token doesn't have required permissions.",
		422: "Invalid search query. Check your search syntax.",
	})
	if err != nil {
		return Response[Repo]{}, err
	}
	if !gjson.ValidBytes(body) {
		return Response[Repo]{}, fmt.Errorf("github_search: invalid JSON response")
	}

	var repos []Repo
	gjson.GetBytes(body, "items").ForEach(func(_, v gjson.Result) bool {
		r := Repo{
			Name:        v.Get("full_name").String(),
			Description: v.Get("description").String(),
			URL:         v.Get("html_url").String(),
			Stars:       v.Get("stargazers_count").Int(),
			Language:    v.Get("language").String(),
			LastUpdated: v.Get("updated_at").String(),
			Topics:      []string{},
		}
		if r.Description == "" {
			r.Description = "No description provided"
		}
		if r.Language == "" {
			r.Language = "Not specified"
		}
		for _, t := range v.Get("topics").Array() {
			r.Topics = append(r.Topics, t.String())
		}
		repos = append(repos, r)
		return true
	})
	return respond(repos), nil
}
