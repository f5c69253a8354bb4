package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/petasbytes/toolloop/internal/metrics"
)

const (
	EnvPrefix         = "AGT"
	DefaultFile       = "agent"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the resolved agent configuration.
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Email     EmailConfig     `mapstructure:"email"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	// Pricing overrides or extends the built-in rate table, keyed by model
	// name or name prefix.
	Pricing map[string]metrics.Rate `mapstructure:"pricing"`
}

type ModelConfig struct {
	Provider    string        `mapstructure:"provider"`
	Name        string        `mapstructure:"name"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LoopConfig struct {
	MaxIterations       int           `mapstructure:"max_iterations"`
	ToolTimeout         time.Duration `mapstructure:"tool_timeout"`
	MaxTranscriptTokens int           `mapstructure:"max_transcript_tokens"`
	Concurrency         int           `mapstructure:"concurrency"`
}

// Feed is one subscribed RSS feed.
type Feed struct {
	Name   string   `mapstructure:"name"`
	RSSURL string   `mapstructure:"rss_url"`
	Tags   []string `mapstructure:"tags"`
}

type ToolsConfig struct {
	MaxResults      int           `mapstructure:"max_results"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	TavilyAPIKey    string        `mapstructure:"tavily_api_key"`
	GitHubToken     string        `mapstructure:"github_token"`
	BooksAPIKey     string        `mapstructure:"books_api_key"`
	YouTubeAPIKey   string        `mapstructure:"youtube_api_key"`
	PreferencesPath string        `mapstructure:"preferences_path"`
	Feeds           []Feed        `mapstructure:"feeds"`
	ReadingListPath string        `mapstructure:"reading_list_path"`
}

type SandboxConfig struct {
	ReadRoot  string `mapstructure:"read_root"`
	WriteRoot string `mapstructure:"write_root"`
}

// EmailConfig selects SMTP delivery when SMTPHost is set; otherwise digests
// land in OutboxDir.
type EmailConfig struct {
	SMTPHost  string   `mapstructure:"smtp_host"`
	SMTPPort  int      `mapstructure:"smtp_port"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	From      string   `mapstructure:"from"`
	To        []string `mapstructure:"to"`
	OutboxDir string   `mapstructure:"outbox_dir"`
}

type TelemetryConfig struct {
	Observe      bool   `mapstructure:"observe"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	LogLevel     string `mapstructure:"log_level"`
	Pretty       bool   `mapstructure:"pretty"`
}

// conventional env names accepted next to the AGT_ ones
var envAliases = map[string][]string{
	"tools.tavily_api_key":  {"TAVILY_API_KEY"},
	"tools.github_token":    {"GITHUB_TOKEN"},
	"tools.books_api_key":   {"GOOGLE_BOOKS_API_KEY"},
	"tools.youtube_api_key": {"YOUTUBE_API_KEY"},
	"keys.anthropic":        {"ANTHROPIC_API_KEY"},
	"keys.openai":           {"OPENAI_API_KEY"},
	"telemetry.observe":     {"AGT_OBSERVE_JSON"},
}

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-3-haiku-20240307",
	ProviderOpenAI:    "gpt-4o-mini",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", ProviderAnthropic)
	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.timeout", 30*time.Second)

	v.SetDefault("loop.max_iterations", 10)
	v.SetDefault("loop.tool_timeout", 30*time.Second)
	v.SetDefault("loop.max_transcript_tokens", 0)
	v.SetDefault("loop.concurrency", 2)

	v.SetDefault("tools.max_results", 5)
	v.SetDefault("tools.request_timeout", 30*time.Second)
	v.SetDefault("tools.tavily_api_key", "")
	v.SetDefault("tools.github_token", "")
	v.SetDefault("tools.books_api_key", "")
	v.SetDefault("tools.youtube_api_key", "")
	v.SetDefault("tools.preferences_path", "preferences.yaml")
	v.SetDefault("tools.feeds", []Feed{})
	v.SetDefault("tools.reading_list_path", "reading_list.jsonl")

	v.SetDefault("sandbox.read_root", "")
	v.SetDefault("sandbox.write_root", "")

	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "agent@localhost")
	v.SetDefault("email.to", []string{})
	v.SetDefault("email.outbox_dir", "outbox")

	v.SetDefault("telemetry.observe", false)
	v.SetDefault("telemetry.artifacts_dir", ".agent")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.pretty", false)
}

// Load resolves configuration from defaults, an optional YAML file and the
// environment. An empty path looks for agent.yaml in the working directory;
// a missing default file is not an error. Overrides (typically CLI flags)
// win over everything else.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultFile)
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = defaultModels[cfg.Model.Provider]
	}
	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case ProviderAnthropic:
			cfg.Model.APIKey = v.GetString("keys.anthropic")
		case ProviderOpenAI:
			cfg.Model.APIKey = v.GetString("keys.openai")
		}
	}
	return &cfg, nil
}

// Validate reports the first setting the loop cannot run with.
func (c *Config) Validate() error {
	if _, ok := defaultModels[c.Model.Provider]; !ok {
		return fmt.Errorf("model.provider %q: must be %s or %s", c.Model.Provider, ProviderAnthropic, ProviderOpenAI)
	}
	if c.Loop.MaxIterations <= 0 {
		return fmt.Errorf("loop.max_iterations must be positive, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.MaxTranscriptTokens < 0 {
		return fmt.Errorf("loop.max_transcript_tokens must not be negative, got %d", c.Loop.MaxTranscriptTokens)
	}
	if c.Loop.Concurrency < 1 {
		return fmt.Errorf("loop.concurrency must be at least 1, got %d", c.Loop.Concurrency)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature %.2f out of range [0, 2]", c.Model.Temperature)
	}
	for i, f := range c.Tools.Feeds {
		if f.RSSURL == "" {
			return fmt.Errorf("tools.feeds[%d]: rss_url is required", i)
		}
	}
	return nil
}
