package podcast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/sourcegraph/conc/iter"
)

const (
	entriesPerFeed  = 10
	feedConcurrency = 4
	maxFeedBytes    = 8 << 20
)

// Episode is a feed entry normalised across RSS and Atom by gofeed.
type Episode struct {
	ID          string    `json:"id"`
	Podcast     string    `json:"podcast"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Published   time.Time `json:"published"`
	Link        string    `json:"link,omitempty"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// FeedReader fetches and parses subscriptions.
type FeedReader struct {
	http *http.Client
}

func NewFeedReader(hc *http.Client) *FeedReader {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &FeedReader{http: hc}
}

// Read returns up to ten of the newest entries of sub.
func (r *FeedReader) Read(ctx context.Context, sub Subscription) ([]Episode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.RSSURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s: status %d", sub.Name, resp.StatusCode)
	}
	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", sub.Name, err)
	}
	return episodes(sub, feed), nil
}

func episodes(sub Subscription, feed *gofeed.Feed) []Episode {
	items := feed.Items
	if len(items) > entriesPerFeed {
		items = items[:entriesPerFeed]
	}
	out := make([]Episode, 0, len(items))
	for _, it := range items {
		ep := Episode{
			Podcast:     sub.Name,
			Title:       strings.TrimSpace(it.Title),
			Description: plainText(firstNonEmpty(it.Description, itunesSummary(it), it.Content)),
			Link:        strings.TrimSpace(it.Link),
			Published:   published(it),
			Tags:        sub.Tags,
		}
		for _, enc := range it.Enclosures {
			if enc != nil && enc.URL != "" {
				ep.AudioURL = enc.URL
				break
			}
		}
		if ep.Link == "" && len(it.Links) > 0 {
			ep.Link = it.Links[0]
		}
		ep.ID = episodeID(sub.RSSURL, firstNonEmpty(it.GUID, ep.Link, ep.Title))
		if ep.Title == "" {
			ep.Title = "Untitled"
		}
		if ep.Description == "" {
			ep.Description = "No description"
		}
		out = append(out, ep)
	}
	return out
}

func itunesSummary(it *gofeed.Item) string {
	if it.ITunesExt == nil {
		return ""
	}
	return it.ITunesExt.Summary
}

// published prefers the dates gofeed parsed and falls back to dateparse for
// formats it does not recognise. Zero means unknown.
func published(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC()
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC()
	}
	t, err := parseDate(firstNonEmpty(it.Published, it.Updated))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// FeedFailure names a subscription that could not be read.
type FeedFailure struct {
	Podcast string `json:"podcast"`
	Error   string `json:"error"`
}

// Recent reads every subscription concurrently and keeps entries published
// after since. Unreadable feeds are reported, not fatal.
func (r *FeedReader) Recent(ctx context.Context, subs []Subscription, since time.Time) ([]Episode, []FeedFailure) {
	type result struct {
		eps []Episode
		err error
	}
	mapper := iter.Mapper[Subscription, result]{MaxGoroutines: feedConcurrency}
	results := mapper.Map(subs, func(s *Subscription) result {
		eps, err := r.Read(ctx, *s)
		return result{eps, err}
	})

	var eps []Episode
	var failed []FeedFailure
	for i, res := range results {
		if res.err != nil {
			failed = append(failed, FeedFailure{Podcast: subs[i].Name, Error: res.err.Error()})
			continue
		}
		for _, ep := range res.eps {
			if !ep.Published.IsZero() && ep.Published.After(since) {
				eps = append(eps, ep)
			}
		}
	}
	return eps, failed
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	return dateparse.ParseAny(s)
}

func episodeID(feed, key string) string {
	sum := sha256.Sum256([]byte(feed + "\x00" + key))
	return "ep_" + hex.EncodeToString(sum[:])[:10]
}

var tagRE = regexp.MustCompile(`<[^>]+>`)

// plainText strips markup from feed descriptions and caps their length.
func plainText(s string) string {
	s = html.UnescapeString(tagRE.ReplaceAllString(s, " "))
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 500 {
		s = string(r[:497]) + "..."
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
