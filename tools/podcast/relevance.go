package podcast

import (
	"fmt"
	"math"
	"strings"
)

const (
	baseRelevance  = 0.5
	perInterest    = 0.15
	summarizeAbove = 0.6
)

type Relevance struct {
	Success        bool     `json:"success"`
	Score          float64  `json:"relevance_score"`
	Matches        []string `json:"matches"`
	Reasoning      string   `json:"reasoning"`
	Recommendation string   `json:"recommendation"`
}

// ScoreRelevance starts at 0.5 and adds 0.15 for each interest found
// (case-insensitively) in the title or description, capped at 1.0. Episodes
// scoring above 0.6 are recommended for summarizing.
func ScoreRelevance(title, description string, interests []string) Relevance {
	text := strings.ToLower(title + " " + description)
	score := baseRelevance
	matches := []string{}
	for _, in := range interests {
		if in = strings.TrimSpace(in); in != "" && strings.Contains(text, strings.ToLower(in)) {
			score += perInterest
			matches = append(matches, in)
		}
	}
	score = math.Min(score, 1.0)
	score = math.Round(score*100) / 100

	rec := "skip"
	if score > summarizeAbove {
		rec = "summarize"
	}
	return Relevance{
		Success:        true,
		Score:          score,
		Matches:        matches,
		Reasoning:      fmt.Sprintf("Episode matches %d of user's interests", len(matches)),
		Recommendation: rec,
	}
}
