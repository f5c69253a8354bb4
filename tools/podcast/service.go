package podcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petasbytes/toolloop/internal/fsops"
	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/internal/telemetry"
	"github.com/petasbytes/toolloop/tools"
	"github.com/petasbytes/toolloop/tools/search"
)

const (
	DefaultReadingList = "reading_list.jsonl"
	DefaultOutboxDir   = "outbox"
	transcriptChars    = 12000
	// episode caches kept for the most recent sessions
	maxSessionCaches = 32
)

// WebSearcher is the subset of search.Client used for podcast discovery.
type WebSearcher interface {
	WebSearch(ctx context.Context, query string, maxResults int) (search.Response[search.WebResult], error)
}

// PageFetcher extracts readable text from episode pages.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, maxChars int) (search.Page, error)
}

type Config struct {
	PreferencesPath string
	Subscriptions   []Subscription
	ReadingListPath string
	OutboxDir       string
	From            string
	To              []string
}

// Deps are the collaborators a Service needs. Nil Clock means time.Now; a
// nil Mailer writes to the outbox.
type Deps struct {
	Sandbox    *fsops.Sandbox
	HTTPClient *http.Client
	Web        WebSearcher
	Pages      PageFetcher
	Model      provider.Model
	Mailer     Mailer
	Clock      func() time.Time
	Logger     zerolog.Logger
	// Sampling is used for generate_summary completions.
	Sampling   provider.Sampling
}

// Service backs the podcast tools. Episodes seen by fetch_new_episodes are
// remembered per session so later tools in the same run can refer to them
// by ID; sessions never see each other's episodes.
type Service struct {
	cfg        Config
	sb         *fsops.Sandbox
	feeds      *FeedReader
	web        WebSearcher
	pages      PageFetcher
	summarizer *Summarizer
	mailer     Mailer
	list       *ReadingList
	now        func() time.Time
	log        zerolog.Logger

	mu       sync.RWMutex
	episodes map[string]map[string]Episode // session ID -> episode ID -> episode
	sessions []string                      // oldest first
}

func NewService(cfg Config, d Deps) (*Service, error) {
	if d.Sandbox == nil {
		return nil, errors.New("podcast: sandbox is required")
	}
	if cfg.ReadingListPath == "" {
		cfg.ReadingListPath = DefaultReadingList
	}
	if cfg.OutboxDir == "" {
		cfg.OutboxDir = DefaultOutboxDir
	}
	s := &Service{
		cfg:      cfg,
		sb:       d.Sandbox,
		feeds:    NewFeedReader(d.HTTPClient),
		web:      d.Web,
		pages:    d.Pages,
		mailer:   d.Mailer,
		list:     NewReadingList(d.Sandbox, cfg.ReadingListPath),
		now:      d.Clock,
		log:      d.Logger,
		episodes: make(map[string]map[string]Episode),
	}
	if d.Model != nil {
		s.summarizer = NewSummarizer(d.Model, d.Sampling)
	}
	if s.mailer == nil {
		s.mailer = OutboxMailer{Sandbox: d.Sandbox, Dir: cfg.OutboxDir}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Service) remember(ctx context.Context, eps []Episode) {
	sid, _ := telemetry.SessionIDFromContext(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	cache, ok := s.episodes[sid]
	if !ok {
		cache = make(map[string]Episode)
		s.episodes[sid] = cache
		s.sessions = append(s.sessions, sid)
		if len(s.sessions) > maxSessionCaches {
			delete(s.episodes, s.sessions[0])
			s.sessions = s.sessions[1:]
		}
	}
	for _, ep := range eps {
		cache[ep.ID] = ep
	}
}

func (s *Service) episode(ctx context.Context, id string) (Episode, bool) {
	sid, _ := telemetry.SessionIDFromContext(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.episodes[sid][id]
	return ep, ok
}

// subscriptions merges configured feeds with those in the preferences file.
func (s *Service) subscriptions(prefs Preferences) []Subscription {
	seen := map[string]bool{}
	var out []Subscription
	for _, sub := range append(append([]Subscription{}, s.cfg.Subscriptions...), prefs.Subscriptions...) {
		if sub.RSSURL == "" || seen[sub.RSSURL] {
			continue
		}
		seen[sub.RSSURL] = true
		if sub.Name == "" {
			sub.Name = sub.RSSURL
		}
		out = append(out, sub)
	}
	return out
}

type prefsInput struct{}

type episodesInput struct {
	HoursBack int `json:"hours_back,omitempty" jsonschema:"minimum=1,maximum=720,default=24" jsonschema_description:"How many hours back to check for new episodes."`
}

type discoverInput struct {
	Topics []string `json:"topics" jsonschema_description:"Topics to search for, e.g. ['AI safety', 'quantum computing']."`
	Limit  int      `json:"limit,omitempty" jsonschema:"minimum=1,maximum=10,default=5" jsonschema_description:"Maximum number of recommendations."`
}

type relevanceInput struct {
	EpisodeTitle       string   `json:"episode_title" jsonschema_description:"Episode title."`
	EpisodeDescription string   `json:"episode_description" jsonschema_description:"Episode description."`
	UserInterests      []string `json:"user_interests" jsonschema_description:"User's interest topics."`
}

type transcriptInput struct {
	EpisodeID  string `json:"episode_id" jsonschema_description:"Episode identifier from fetch_new_episodes."`
	EpisodeURL string `json:"episode_url,omitempty" jsonschema_description:"Episode page URL, for episodes not returned by fetch_new_episodes."`
}

type summaryInput struct {
	Content      string   `json:"content" jsonschema_description:"Transcript or description to summarize."`
	Style        string   `json:"style,omitempty" jsonschema:"enum=brief,enum=detailed,enum=technical,default=brief" jsonschema_description:"brief (user is busy), detailed (user has time), technical (complex topic needs depth)."`
	EpisodeID    string   `json:"episode_id,omitempty"`
	EpisodeTitle string   `json:"episode_title,omitempty"`
	FocusAreas   []string `json:"focus_areas,omitempty" jsonschema_description:"Specific areas to focus on in the summary."`
}

type emailInput struct {
	Subject  string `json:"subject" jsonschema_description:"Email subject line."`
	Content  string `json:"content" jsonschema_description:"Email body in markdown format."`
	Priority string `json:"priority,omitempty" jsonschema:"enum=low,enum=normal,enum=high,default=normal" jsonschema_description:"Email priority based on content value."`
}

type saveInput struct {
	EpisodeID string `json:"episode_id" jsonschema_description:"Episode identifier."`
	Reason    string `json:"reason" jsonschema_description:"Why this should be saved for later."`
}

type listInput struct{}

// handler adapts a typed function to tools.Func.
func handler[T any](fn func(context.Context, T) (any, error)) tools.Func {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var in T
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// Tools returns the podcast toolset.
func (s *Service) Tools() []tools.Tool {
	out := []tools.Tool{
		{
			Descriptor: tools.Descriptor{
				Name:        "check_user_preferences",
				Description: "Check the user's interests, preferred summary length and style, email frequency and subscriptions. Use this FIRST to understand what the user values.",
				Params:      tools.ParamsFor[prefsInput](),
			},
			Func: handler(s.checkPreferences),
		},
		{
			Descriptor: tools.Descriptor{
				Name:        "fetch_new_episodes",
				Description: "Fetch new podcast episodes from the user's RSS subscriptions. Returns episodes with id, title, description, podcast and publish time.",
				Params:      tools.ParamsFor[episodesInput](),
			},
			Func: handler(s.fetchEpisodes),
		},
		{
			Descriptor: tools.Descriptor{
				Name:        "analyze_episode_relevance",
				Description: "Analyze whether an episode is relevant to the user's interests. Returns a relevance score (0-1), reasoning and a summarize/skip recommendation.",
				Params:      tools.ParamsFor[relevanceInput](),
			},
			Func: handler(func(_ context.Context, in relevanceInput) (any, error) {
				return ScoreRelevance(in.EpisodeTitle, in.EpisodeDescription, in.UserInterests), nil
			}),
		},
		{
			Descriptor: tools.Descriptor{
				Name:        "save_for_later",
				Description: "Save an episode to the user's reading list for later review. Use when an episode is valuable but not urgent.",
				Params:      tools.ParamsFor[saveInput](),
				// Appends to the reading list.
				SideEffecting: true,
			},
			Func: handler(s.saveForLater),
		},
		{
			Descriptor: tools.Descriptor{
				Name:        "list_saved",
				Description: "List episodes already on the user's reading list.",
				Params:      tools.ParamsFor[listInput](),
			},
			Func: handler(s.listSaved),
		},
		{
			Descriptor: tools.Descriptor{
				Name:          "send_email_digest",
				Description:   "Send an email digest to the user. Only use when you have valuable content to deliver.",
				Params:        tools.ParamsFor[emailInput](),
				SideEffecting: true,
			},
			Func: handler(s.sendDigest),
		},
	}
	if s.web != nil {
		out = append(out, tools.Tool{
			Descriptor: tools.Descriptor{
				Name:        "search_web_for_podcasts",
				Description: "Search the web for NEW podcast recommendations on the given topics. Use when the user wants podcasts beyond their current subscriptions.",
				Params:      tools.ParamsFor[discoverInput](),
			},
			Func: handler(s.discover),
		})
	}
	if s.pages != nil {
		out = append(out, tools.Tool{
			Descriptor: tools.Descriptor{
				Name:        "get_transcript",
				Description: "Get the transcript or page content for an episode. Try this before summarizing.",
				Params:      tools.ParamsFor[transcriptInput](),
			},
			Func: handler(s.transcript),
		})
	}
	if s.summarizer != nil {
		out = append(out, tools.Tool{
			Descriptor: tools.Descriptor{
				Name:        "generate_summary",
				Description: "Generate an AI summary of episode content. YOU decide the style based on content complexity and the user's current context.",
				Params:      tools.ParamsFor[summaryInput](),
			},
			Func: handler(s.summarize),
		})
	}
	return out
}

func (s *Service) checkPreferences(_ context.Context, _ prefsInput) (any, error) {
	prefs, fromFile, err := LoadPreferences(s.sb, s.cfg.PreferencesPath)
	if err != nil {
		return nil, err
	}
	prefs.Subscriptions = s.subscriptions(prefs)
	source := "defaults"
	if fromFile {
		source = s.cfg.PreferencesPath
	}
	return map[string]any{
		"success":     true,
		"preferences": prefs,
		"source":      source,
		"message":     "User preferences loaded",
	}, nil
}

func (s *Service) fetchEpisodes(ctx context.Context, in episodesInput) (any, error) {
	hours := in.HoursBack
	if hours <= 0 {
		hours = 24
	}
	prefs, _, err := LoadPreferences(s.sb, s.cfg.PreferencesPath)
	if err != nil {
		return nil, err
	}
	subs := s.subscriptions(prefs)
	if len(subs) == 0 {
		return nil, errors.New("no podcast subscriptions configured")
	}

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	eps, failed := s.feeds.Recent(ctx, subs, since)
	for _, f := range failed {
		s.log.Warn().Str("podcast", f.Podcast).Str("error", f.Error).Msg("feed unreadable")
	}
	if len(failed) == len(subs) {
		return nil, fmt.Errorf("all %d feeds failed; first error: %s", len(failed), failed[0].Error)
	}
	s.remember(ctx, eps)
	if eps == nil {
		eps = []Episode{}
	}
	return map[string]any{
		"success":      true,
		"episodes":     eps,
		"count":        len(eps),
		"time_range":   fmt.Sprintf("Last %d hours", hours),
		"failed_feeds": failed,
	}, nil
}

func (s *Service) discover(ctx context.Context, in discoverInput) (any, error) {
	if len(in.Topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 5
	}
	query := strings.Join(in.Topics, " ") + " podcast"
	res, err := s.web.WebSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	recs := make([]map[string]any, 0, len(res.Results))
	for _, r := range res.Results {
		recs = append(recs, map[string]any{
			"name":            r.Title,
			"url":             r.URL,
			"description":     r.Content,
			"relevance_score": r.Score,
		})
	}
	return map[string]any{
		"success":         true,
		"recommendations": recs,
		"count":           len(recs),
		"query":           query,
	}, nil
}

func (s *Service) transcript(ctx context.Context, in transcriptInput) (any, error) {
	ep, known := s.episode(ctx, in.EpisodeID)
	link := in.EpisodeURL
	if link == "" {
		link = ep.Link
	}
	if link == "" {
		if !known {
			return nil, fmt.Errorf("unknown episode_id %q: call fetch_new_episodes first or pass episode_url", in.EpisodeID)
		}
		return map[string]any{
			"success":    true,
			"episode_id": in.EpisodeID,
			"title":      ep.Title,
			"transcript": ep.Description,
			"length":     len([]rune(ep.Description)),
			"source":     "description",
		}, nil
	}
	page, err := s.pages.Fetch(ctx, link, transcriptChars)
	if err != nil {
		return nil, fmt.Errorf("transcript for %s: %w", in.EpisodeID, err)
	}
	title := ep.Title
	if title == "" {
		title = page.Title
	}
	return map[string]any{
		"success":    true,
		"episode_id": in.EpisodeID,
		"title":      title,
		"transcript": page.Text,
		"length":     page.Length,
		"truncated":  page.Truncated,
		"source":     page.Extractor,
	}, nil
}

func (s *Service) summarize(ctx context.Context, in summaryInput) (any, error) {
	style := in.Style
	if style == "" {
		style = "brief"
	}
	title := in.EpisodeTitle
	if ep, ok := s.episode(ctx, in.EpisodeID); ok && title == "" {
		title = ep.Title
	}
	sum, err := s.summarizer.Summarize(ctx, title, in.Content, style, in.FocusAreas)
	if err != nil {
		return nil, err
	}
	sum.EpisodeID = in.EpisodeID
	return sum, nil
}

func (s *Service) sendDigest(ctx context.Context, in emailInput) (any, error) {
	prio := in.Priority
	if prio == "" {
		prio = "normal"
	}
	msg := Message{
		From:     s.cfg.From,
		To:       s.cfg.To,
		Subject:  in.Subject,
		Body:     in.Content,
		Priority: prio,
		Date:     s.now(),
	}
	if msg.From == "" {
		msg.From = "toolloop@localhost"
	}
	rcpt, err := s.mailer.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("transport", rcpt.Transport).Str("subject", in.Subject).Str("priority", prio).Msg("digest sent")
	return rcpt, nil
}

func (s *Service) saveForLater(ctx context.Context, in saveInput) (any, error) {
	e := Entry{EpisodeID: in.EpisodeID, Reason: in.Reason, SavedAt: s.now().UTC()}
	if ep, ok := s.episode(ctx, in.EpisodeID); ok {
		e.Title = ep.Title
	}
	saved, err := s.list.Add(e)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Episode %s saved to reading list", in.EpisodeID),
		"entry":   saved,
	}, nil
}

func (s *Service) listSaved(_ context.Context, _ listInput) (any, error) {
	entries, err := s.list.All()
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "entries": entries, "count": len(entries)}, nil
}
