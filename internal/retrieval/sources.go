package retrieval

import (
	"strings"

	"akar-rag/internal/vector"
)

const snippetEllipsis = " …"

type Source struct {
	URL          string `json:"url"`
	SectionTitle string `json:"section_title"`
	Snippet      string `json:"snippet"`
}

// SelectSources keeps the first hit of every (section title, url) pair, up to
// max sources. hits must be ordered best first, so the kept snippet is the
// best-scoring one for its section. Any non-empty hits yield at least one
// source.
func SelectSources(hits []vector.Hit, max, snippetLen int) []Source {
	if max <= 0 {
		max = 1
	}
	type key struct{ title, url string }
	seen := make(map[key]struct{}, len(hits))
	sources := make([]Source, 0, min(max, len(hits)))
	for _, h := range hits {
		k := key{h.Chunk.SectionTitle, h.Chunk.SourceURL}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sources = append(sources, Source{
			URL:          h.Chunk.SourceURL,
			SectionTitle: h.Chunk.SectionTitle,
			Snippet:      Snippet(h.Chunk.Text, snippetLen),
		})
		if len(sources) == max {
			break
		}
	}
	return sources
}

// Snippet returns the first n runes of text, marking truncation.
func Snippet(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(runes[:n])) + snippetEllipsis
}
