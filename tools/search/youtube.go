package search

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

type Video struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Channel     string `json:"channel"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
	Thumbnail   string `json:"thumbnail"`
}

// YouTubeSearch lists videos for query. The Books key is used when no
// dedicated YouTube key is configured, since one Google key covers both.
func (c *Client) YouTubeSearch(ctx context.Context, query string, maxResults int) (Response[Video], error) {
	key := c.keys.YouTube
	if key == "" {
		key = c.keys.Books
	}
	if key == "" {
		return Response[Video]{}, fmt.Errorf("youtube_search: youtube %w", ErrMissingKey)
	}
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", query)
	q.Set("key", key)
	q.Set("maxResults", strconv.Itoa(c.clampResults(maxResults)))
	q.Set("type", "video")
	q.Set("order", "relevance")
	q.Set("safeSearch", "moderate")

	body, err := c.get(ctx, "youtube_search", c.endpoints.YouTube, "/youtube/v3/search", q, nil, map[int]string{
		400: "Bad request. Check your search query.",
		403: "API key invalid or quota exceeded.",
	})
	if err != nil {
		return Response[Video]{}, err
	}

	var videos []Video
	gjson.GetBytes(body, "items").ForEach(func(_, v gjson.Result) bool {
		id := v.Get("id.videoId").String()
		if id == "" {
			return true
		}
		sn := v.Get("snippet")
		published := sn.Get("publishedAt").String()
		if len(published) > 10 {
			published = published[:10]
		}
		videos = append(videos, Video{
			Title:       sn.Get("title").String(),
			Description: truncate(sn.Get("description").String(), 300),
			Channel:     sn.Get("channelTitle").String(),
			PublishedAt: published,
			URL:         "https://www.youtube.com/watch?v=" + id,
			Thumbnail:   sn.Get("thumbnails.medium.url").String(),
		})
		return true
	})
	return respond(videos), nil
}
