// Package dependency wires the agent's services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.uber.org/dig"

	"github.com/petasbytes/toolloop/internal/config"
	"github.com/petasbytes/toolloop/internal/fsops"
	"github.com/petasbytes/toolloop/internal/metrics"
	"github.com/petasbytes/toolloop/internal/provider"
	"github.com/petasbytes/toolloop/internal/runner"
	"github.com/petasbytes/toolloop/internal/workflow"
	"github.com/petasbytes/toolloop/tools/podcast"
	"github.com/petasbytes/toolloop/tools/search"
)

// RunnerFactory builds a Runner for a workflow: its registry, its system
// instruction and the configured loop limits.
type RunnerFactory func(w workflow.Workflow) (*runner.Runner, error)

// Container holds the resolved singletons. Callers use the getters and never
// import dig themselves.
type Container struct {
	cfg     *config.Config
	log     zerolog.Logger
	model   provider.Model
	sandbox *fsops.Sandbox
	mailer  podcast.Mailer
	kit     workflow.Kit
	runners RunnerFactory
}

func (c *Container) Config() *config.Config    { return c.cfg }
func (c *Container) Logger() zerolog.Logger    { return c.log }
func (c *Container) Model() provider.Model     { return c.model }
func (c *Container) Sandbox() *fsops.Sandbox   { return c.sandbox }
func (c *Container) Mailer() podcast.Mailer    { return c.mailer }
func (c *Container) Kit() workflow.Kit         { return c.kit }
func (c *Container) Runners() RunnerFactory    { return c.runners }
func (c *Container) Search() *search.Client    { return c.kit.Search }
func (c *Container) Podcast() *podcast.Service { return c.kit.Podcast }

// Workflow returns the named workflow over the container's backends.
func (c *Container) Workflow(name string) (workflow.Workflow, error) {
	return workflow.Build(name, c.kit)
}

// Runner is shorthand for Workflow followed by the runner factory.
func (c *Container) Runner(name string) (*runner.Runner, workflow.Workflow, error) {
	w, err := c.Workflow(name)
	if err != nil {
		return nil, workflow.Workflow{}, err
	}
	r, err := c.runners(w)
	if err != nil {
		return nil, workflow.Workflow{}, err
	}
	return r, w, nil
}

// BuildContainer wires every service from cfg.
func BuildContainer(cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() zerolog.Logger { return logger }); err != nil {
		return nil, err
	}
	for _, ctor := range []any{
		newModel,
		newHTTPClient,
		newSandbox,
		newSearchClient,
		newMailer,
		newPodcastService,
		newKit,
		newRates,
		newRunnerFactory,
	} {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		model provider.Model,
		sb *fsops.Sandbox,
		mailer podcast.Mailer,
		kit workflow.Kit,
		runners RunnerFactory,
	) {
		result = &Container{
			cfg:     cfg,
			log:     logger,
			model:   model,
			sandbox: sb,
			mailer:  mailer,
			kit:     kit,
			runners: runners,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("build container: %w", dig.RootCause(err))
	}
	return result, nil
}

func newModel(cfg *config.Config) (provider.Model, error) {
	m := cfg.Model
	switch m.Provider {
	case config.ProviderAnthropic:
		var opts []option.RequestOption
		if m.APIKey != "" {
			opts = append(opts, option.WithAPIKey(m.APIKey))
		}
		if m.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(m.BaseURL))
		}
		return provider.NewAnthropic(m.Name, opts...), nil
	case config.ProviderOpenAI:
		return provider.NewOpenAI(m.APIKey, m.BaseURL, m.Name, &http.Client{Timeout: m.Timeout}), nil
	}
	return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, m.Provider)
}

// newHTTPClient is shared by the search APIs and the feed reader.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Tools.RequestTimeout}
}

func newSandbox(cfg *config.Config) (*fsops.Sandbox, error) {
	return fsops.New(cfg.Sandbox.ReadRoot, cfg.Sandbox.WriteRoot)
}

func newSearchClient(cfg *config.Config, hc *http.Client, log zerolog.Logger) *search.Client {
	t := cfg.Tools
	keys := search.Keys{
		Tavily:  t.TavilyAPIKey,
		GitHub:  t.GitHubToken,
		Books:   t.BooksAPIKey,
		YouTube: t.YouTubeAPIKey,
	}
	return search.NewClient(keys,
		search.WithHTTPClient(hc),
		search.WithDefaultResults(t.MaxResults),
		search.WithLogger(log.With().Str("component", "search").Logger()),
	)
}

func newMailer(cfg *config.Config, sb *fsops.Sandbox) podcast.Mailer {
	e := cfg.Email
	if e.SMTPHost != "" {
		return podcast.SMTPMailer{Host: e.SMTPHost, Port: e.SMTPPort, Username: e.Username, Password: e.Password}
	}
	return podcast.OutboxMailer{Sandbox: sb, Dir: e.OutboxDir}
}

func newPodcastService(
	cfg *config.Config,
	sb *fsops.Sandbox,
	hc *http.Client,
	sc *search.Client,
	model provider.Model,
	mailer podcast.Mailer,
	log zerolog.Logger,
) (*podcast.Service, error) {
	subs := make([]podcast.Subscription, 0, len(cfg.Tools.Feeds))
	for _, f := range cfg.Tools.Feeds {
		subs = append(subs, podcast.Subscription{Name: f.Name, RSSURL: f.RSSURL, Tags: f.Tags})
	}
	deps := podcast.Deps{
		Sandbox:    sb,
		HTTPClient: hc,
		Pages:      sc,
		Model:      model,
		Mailer:     mailer,
		Logger:     log.With().Str("component", "podcast").Logger(),
		Sampling:   provider.Sampling{Temperature: cfg.Model.Temperature},
	}
	// Without a Tavily key web discovery can only fail, so the tool is not offered.
	if cfg.Tools.TavilyAPIKey != "" {
		deps.Web = sc
	}
	return podcast.NewService(podcast.Config{
		PreferencesPath: cfg.Tools.PreferencesPath,
		Subscriptions:   subs,
		ReadingListPath: cfg.Tools.ReadingListPath,
		OutboxDir:       cfg.Email.OutboxDir,
		From:            cfg.Email.From,
		To:              cfg.Email.To,
	}, deps)
}

func newKit(sc *search.Client, svc *podcast.Service) workflow.Kit {
	return workflow.Kit{Search: sc, Podcast: svc}
}

// newRates layers configured prices over the built-in table.
func newRates(cfg *config.Config) metrics.RateTable {
	rates := metrics.DefaultRates()
	for name, r := range cfg.Pricing {
		rates[name] = r
	}
	return rates
}

func newRunnerFactory(cfg *config.Config, model provider.Model, rates metrics.RateTable, log zerolog.Logger) RunnerFactory {
	return func(w workflow.Workflow) (*runner.Runner, error) {
		reg, err := w.Registry()
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", w.Name, err)
		}
		rc := runner.Config{
			System:              w.System,
			MaxIterations:       cfg.Loop.MaxIterations,
			ModelTimeout:        cfg.Model.Timeout,
			ToolTimeout:         cfg.Loop.ToolTimeout,
			MaxTranscriptTokens: cfg.Loop.MaxTranscriptTokens,
			Sampling: provider.Sampling{
				Temperature: cfg.Model.Temperature,
				MaxTokens:   cfg.Model.MaxTokens,
			},
		}
		return runner.New(model, reg, rc,
			runner.WithRates(rates),
			runner.WithLogger(log.With().Str("workflow", w.Name).Logger()),
		), nil
	}
}
