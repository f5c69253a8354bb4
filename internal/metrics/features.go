package metrics

import (
	"strings"
	"unicode"
)

// TextFeatures are size measurements of a piece of text. They are safe to
// record because the text cannot be recovered from them.
type TextFeatures struct {
	Bytes int
	Runes int
	Words int
	Lines int
	URLs  int
}

// CountFeatures measures s in a single pass. Lines is 0 for empty input and
// otherwise one more than the number of newlines.
func CountFeatures(s string) TextFeatures {
	f := TextFeatures{Bytes: len(s)}
	if s == "" {
		return f
	}
	f.Lines = 1
	inWord := false
	for _, r := range s {
		f.Runes++
		if r == '\n' {
			f.Lines++
		}
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			f.Words++
			inWord = true
		}
	}
	for _, w := range strings.Fields(s) {
		if strings.HasPrefix(w, "http://") || strings.HasPrefix(w, "https://") {
			f.URLs++
		}
	}
	return f
}

// ApproxTokens is a rough token estimate at four runes per token.
func (f TextFeatures) ApproxTokens() int {
	return (f.Runes + 3) / 4
}

// Fields renders f for structured events.
func (f TextFeatures) Fields() map[string]any {
	return map[string]any{
		"bytes":         f.Bytes,
		"runes":         f.Runes,
		"words":         f.Words,
		"lines":         f.Lines,
		"urls":          f.URLs,
		"approx_tokens": f.ApproxTokens(),
	}
}
