package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akar-rag/internal/document"
)

func body(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 "
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[(i*7+i/13)%len(alphabet)])
	}
	return b.String()
}

func TestNewChunker(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"Valid", 1000, 175, false},
		{"Zero Overlap", 10, 0, false},
		{"Overlap Equals Size", 10, 10, true},
		{"Overlap Above Size", 10, 11, true},
		{"Negative Overlap", 10, -1, true},
		{"Zero Size", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunking)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChunker_Split(t *testing.T) {
	c, err := NewChunker(1000, 175)
	require.NoError(t, err)

	t.Run("Short Body Single Chunk", func(t *testing.T) {
		chunks := c.Split([]document.Section{{Title: "HERO", SourceURL: "https://a", Body: "hello"}})
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello", chunks[0].Text)
		assert.Equal(t, 0, chunks[0].ID)
		assert.Equal(t, "HERO", chunks[0].SectionTitle)
		assert.Equal(t, "https://a", chunks[0].SourceURL)
	})

	t.Run("Exactly Chunk Size", func(t *testing.T) {
		chunks := c.Split([]document.Section{{Body: body(1000)}})
		assert.Len(t, chunks, 1)
	})

	t.Run("Empty Body", func(t *testing.T) {
		assert.Empty(t, c.Split([]document.Section{{Title: "EMPTY"}}))
	})

	t.Run("Windows Overlap Exactly", func(t *testing.T) {
		b := body(2600)
		chunks := c.Split([]document.Section{{Body: b}})
		require.Len(t, chunks, c.ExpectedCount(2600))

		for i, ch := range chunks {
			assert.True(t, strings.Contains(b, ch.Text), "chunk %d must be a substring of the body", i)
			assert.Equal(t, i, ch.ChunkIndex)
			if i < len(chunks)-1 {
				assert.Len(t, []rune(ch.Text), 1000)
				next := chunks[i+1].Text
				tail := ch.Text[len(ch.Text)-175:]
				assert.True(t, strings.HasPrefix(next, tail), "chunk %d must start with the last 175 chars of chunk %d", i+1, i)
			}
		}
		last := chunks[len(chunks)-1].Text
		assert.True(t, strings.HasSuffix(b, last))
	})

	t.Run("Multibyte Runes", func(t *testing.T) {
		small, err := NewChunker(4, 1)
		require.NoError(t, err)
		chunks := small.Split([]document.Section{{Body: "أكار للاستشارات"}})
		for _, ch := range chunks {
			assert.LessOrEqual(t, len([]rune(ch.Text)), 4)
			assert.Contains(t, "أكار للاستشارات", ch.Text)
		}
		assert.Len(t, chunks, small.ExpectedCount(len([]rune("أكار للاستشارات"))))
	})
}

func TestChunker_IDsDenseAcrossSections(t *testing.T) {
	c, err := NewChunker(1000, 175)
	require.NoError(t, err)

	lengths := []int{400, 1000, 1001, 2500, 5300}
	var sections []document.Section
	want := 0
	for i, n := range lengths {
		sections = append(sections, document.Section{Title: string(rune('A' + i)), SourceURL: "https://a/" + string(rune('a'+i)), Body: body(n), Order: i})
		want += c.ExpectedCount(n)
	}

	chunks := c.Split(sections)
	require.Len(t, chunks, want)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ID)
	}

	// chunks never cross a section boundary and stay in document order
	prevSection := ""
	for _, ch := range chunks {
		if ch.SectionTitle != prevSection {
			assert.Equal(t, 0, ch.ChunkIndex)
			prevSection = ch.SectionTitle
		}
		idx := int(ch.SectionTitle[0] - 'A')
		assert.Contains(t, sections[idx].Body, ch.Text)
	}
}

func TestChunker_ExpectedCount(t *testing.T) {
	c, err := NewChunker(1000, 175)
	require.NoError(t, err)

	assert.Equal(t, 0, c.ExpectedCount(0))
	assert.Equal(t, 1, c.ExpectedCount(999))
	assert.Equal(t, 1, c.ExpectedCount(1000))
	assert.Equal(t, 2, c.ExpectedCount(1001))
	assert.Equal(t, 2, c.ExpectedCount(1825))
	assert.Equal(t, 3, c.ExpectedCount(1826))
}
