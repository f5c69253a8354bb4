package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

type Post struct {
	Title       string  `json:"title"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int64   `json:"score"`
	NumComments int64   `json:"num_comments"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	Created     float64 `json:"created"`
}

const redditUserAgent = "toolloop/1.0 (content discovery agent)"

// RedditSearch lists posts (not comments) matching query. Reddit rejects
// default client user agents, so a descriptive one is always sent.
func (c *Client) RedditSearch(ctx context.Context, query string, maxResults int) (Response[Post], error) {
	hdr := http.Header{}
	hdr.Set("User-Agent", redditUserAgent)
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(c.clampResults(maxResults)))
	q.Set("sort", "relevance")
	q.Set("type", "link")

	body, err := c.get(ctx, "reddit_search", c.endpoints.Reddit, "/search.json", q, hdr, map[int]string{
		429: "Rate limit exceeded. Try again later.",
	})
	if err != nil {
		return Response[Post]{}, err
	}

	var posts []Post
	gjson.GetBytes(body, "data.children.#.data").ForEach(func(_, p gjson.Result) bool {
		posts = append(posts, Post{
			Title:       p.Get("title").String(),
			Subreddit:   p.Get("subreddit_name_prefixed").String(),
			Author:      p.Get("author").String(),
			Score:       p.Get("score").Int(),
			NumComments: p.Get("num_comments").Int(),
			URL:         "https://www.reddit.com" + p.Get("permalink").String(),
			Content:     truncate(p.Get("selftext").String(), 300),
			Created:     p.Get("created_utc").Float(),
		})
		return true
	})
	return respond(posts), nil
}
