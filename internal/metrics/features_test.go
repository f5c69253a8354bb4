package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/petasbytes/toolloop/internal/metrics"
)

func TestCountFeatures(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want metrics.TextFeatures
	}{
		{"empty", "", metrics.TextFeatures{}},
		{"ascii", "find go podcasts", metrics.TextFeatures{Bytes: 16, Runes: 16, Words: 3, Lines: 1}},
		{"multibyte", "naïve café", metrics.TextFeatures{Bytes: 12, Runes: 10, Words: 2, Lines: 1}},
		{"trailing newline", "a\nb\n", metrics.TextFeatures{Bytes: 4, Runes: 4, Words: 2, Lines: 3}},
		{"crlf", "a\r\nb", metrics.TextFeatures{Bytes: 4, Runes: 4, Words: 2, Lines: 2}},
		{"only whitespace", " \t\n", metrics.TextFeatures{Bytes: 3, Runes: 3, Lines: 2}},
		{"nbsp splits", "foo\u00a0bar", metrics.TextFeatures{Bytes: 8, Runes: 7, Words: 2, Lines: 1}},
		{"zero width does not split", "foo\u200bbar", metrics.TextFeatures{Bytes: 9, Runes: 7, Words: 1, Lines: 1}},
		{
			"urls",
			"summarize https://example.com/ep1 and http://x.io please",
			metrics.TextFeatures{Bytes: 56, Runes: 56, Words: 5, Lines: 1, URLs: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, metrics.CountFeatures(tc.in))
		})
	}
}

func TestTextFeatures_Fields(t *testing.T) {
	f := metrics.CountFeatures("abcde")
	assert.Equal(t, 2, f.ApproxTokens())
	assert.Equal(t, map[string]any{
		"bytes": 5, "runes": 5, "words": 1, "lines": 1, "urls": 0, "approx_tokens": 2,
	}, f.Fields())
	assert.Equal(t, 0, metrics.TextFeatures{}.ApproxTokens())
}
