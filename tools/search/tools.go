package search

import (
	"context"
	"encoding/json"

	"github.com/petasbytes/toolloop/tools"
)

type queryInput struct {
	Query      string `json:"query" jsonschema_description:"Search query."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=10,default=5" jsonschema_description:"Maximum number of results to return (1-10). Default is 5."`
}

type fetchInput struct {
	URL      string `json:"url" jsonschema_description:"http or https URL to fetch."`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"minimum=100,default=8000" jsonschema_description:"Maximum characters of text to return."`
}

type searchFunc func(ctx context.Context, query string, maxResults int) (any, error)

func searchTool(name, description, queryHint string, fn searchFunc) tools.Tool {
	params := tools.ParamsFor[queryInput]()
	q := params["query"]
	q.Description = queryHint
	params["query"] = q
	return tools.Tool{
		Descriptor: tools.Descriptor{Name: name, Description: description, Params: params},
		Func: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in queryInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, err
			}
			return fn(ctx, in.Query, in.MaxResults)
		},
	}
}

// Tools returns the discovery toolset in presentation order.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{
		searchTool("web_search",
			"Search the web for articles, blog posts, tutorials and documentation. "+
				"Good first step for almost any topic. Returns title, URL, content snippet and relevance score.",
			"Search query. Be specific and include key terms.",
			func(ctx context.Context, q string, n int) (any, error) { return c.WebSearch(ctx, q, n) }),
		searchTool("github_search",
			"Search GitHub for code repositories and projects. Best for technical topics where open-source "+
				"projects, code examples or developer tools are relevant. Returns name, description, stars, language and URL.",
			"Search query for GitHub repositories. Can include qualifiers like 'language:go' or 'stars:>1000'.",
			func(ctx context.Context, q string, n int) (any, error) { return c.GitHubSearch(ctx, q, n) }),
		searchTool("books_search",
			"Search Google Books for books and publications. Best when the user wants authoritative sources, "+
				"in-depth learning resources or classic references. Returns title, authors, description, ratings and links.",
			"Search query for books. Include topic keywords and optionally author names.",
			func(ctx context.Context, q string, n int) (any, error) { return c.BooksSearch(ctx, q, n) }),
		searchTool("youtube_search",
			"Search YouTube for videos: tutorials, talks, lectures and visual explanations. "+
				"Returns title, channel, description, publish date and URL.",
			"Search query for videos. Include words like 'tutorial' or 'explained' to steer results.",
			func(ctx context.Context, q string, n int) (any, error) { return c.YouTubeSearch(ctx, q, n) }),
		searchTool("reddit_search",
			"Search Reddit for community discussions, opinions and practical experience. "+
				"Returns post title, subreddit, score, comment count and URL.",
			"Search query for Reddit posts.",
			func(ctx context.Context, q string, n int) (any, error) { return c.RedditSearch(ctx, q, n) }),
		searchTool("arxiv_search",
			"Search arXiv for academic papers and research publications. Best for scientific and technical topics "+
				"where cutting-edge research is valuable. Returns title, authors, abstract, category and PDF link.",
			"Search query for academic papers. Use technical terms and keywords.",
			func(ctx context.Context, q string, n int) (any, error) { return c.ArxivSearch(ctx, q, n) }),
		FetchTool(c),
	}
}

// FetchTool exposes Client.Fetch as web_fetch.
func FetchTool(c *Client) tools.Tool {
	return tools.Tool{
		Descriptor: tools.Descriptor{
			Name:        "web_fetch",
			Description: "Fetch a web page and extract its readable text. Use it to read a promising search result in full.",
			Params:      tools.ParamsFor[fetchInput](),
		},
		Func: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in fetchInput
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, err
			}
			return c.Fetch(ctx, in.URL, in.MaxChars)
		},
	}
}
