package podcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petasbytes/toolloop/internal/fsops"
)

// Entry is one saved episode.
type Entry struct {
	ID        string    `json:"id"`
	EpisodeID string    `json:"episode_id"`
	Title     string    `json:"title,omitempty"`
	Reason    string    `json:"reason"`
	SavedAt   time.Time `json:"saved_at"`
}

// ReadingList is an append-only JSONL file in the sandbox.
type ReadingList struct {
	sb   *fsops.Sandbox
	path string
}

func NewReadingList(sb *fsops.Sandbox, path string) *ReadingList {
	return &ReadingList{sb: sb, path: path}
}

func (l *ReadingList) Add(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	if err := l.sb.AppendFile(l.path, append(b, '\n')); err != nil {
		return Entry{}, fmt.Errorf("save to reading list: %w", err)
	}
	return e, nil
}

// All returns saved entries oldest first.
func (l *ReadingList) All() ([]Entry, error) {
	lines, err := l.sb.ReadLines(l.path)
	if err != nil {
		return nil, fmt.Errorf("read reading list: %w", err)
	}
	out := make([]Entry, 0, len(lines))
	for i, line := range lines {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("reading list line %d: %w", i+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}
