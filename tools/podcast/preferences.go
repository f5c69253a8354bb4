package podcast

import (
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/petasbytes/toolloop/internal/fsops"
)

// Subscription is one RSS feed the user follows.
type Subscription struct {
	Name   string   `yaml:"name" json:"name"`
	RSSURL string   `yaml:"rss_url" json:"rss_url"`
	Tags   []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Preferences is the user's profile as stored in the preferences YAML file.
type Preferences struct {
	Interests       []string       `yaml:"interests" json:"interests"`
	PreferredLength string         `yaml:"preferred_length" json:"preferred_length"`
	SummaryStyle    string         `yaml:"summary_style" json:"summary_style"`
	EmailFrequency  string         `yaml:"email_frequency" json:"email_frequency"`
	ActiveTime      string         `yaml:"active_time,omitempty" json:"active_time,omitempty"`
	SkipTopics      []string       `yaml:"skip_topics,omitempty" json:"skip_topics,omitempty"`
	Subscriptions   []Subscription `yaml:"subscriptions,omitempty" json:"subscriptions,omitempty"`
}

// DefaultPreferences is used when no preferences file exists.
func DefaultPreferences() Preferences {
	return Preferences{
		Interests:       []string{"AI", "productivity", "technology"},
		PreferredLength: "detailed",
		SummaryStyle:    "detailed",
		EmailFrequency:  "daily",
		ActiveTime:      "morning",
		SkipTopics:      []string{"sports", "politics"},
	}
}

var validStyles = map[string]bool{"brief": true, "detailed": true, "technical": true}

// LoadPreferences reads path from the sandbox. A missing file yields the
// defaults; fields left empty in the file keep their default values.
func LoadPreferences(sb *fsops.Sandbox, path string) (Preferences, bool, error) {
	prefs := DefaultPreferences()
	if path == "" {
		return prefs, false, nil
	}
	b, err := sb.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, false, nil
	}
	if err != nil {
		return Preferences{}, false, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(b, &prefs); err != nil {
		return Preferences{}, false, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	if prefs.SummaryStyle != "" && !validStyles[prefs.SummaryStyle] {
		return Preferences{}, false, fmt.Errorf("preferences %s: unknown summary_style %q", path, prefs.SummaryStyle)
	}
	return prefs, true, nil
}
