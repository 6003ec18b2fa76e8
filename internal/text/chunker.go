package text

import (
	"errors"
	"fmt"

	"akar-rag/internal/document"
)

var ErrInvalidChunking = errors.New("invalid chunking configuration")

// Chunk is the unit of embedding and retrieval. ID is its position in the
// vector index.
type Chunk struct {
	ID           int    `json:"id"`
	Text         string `json:"text"`
	SectionTitle string `json:"section_title"`
	SourceURL    string `json:"source_url"`
	ChunkIndex   int    `json:"chunk_index"`
}

// Chunker slides a fixed window of Size characters over each section body,
// advancing by Size-Overlap. Sizes count runes, not bytes.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunking, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every section in order. IDs are dense across sections so they
// line up with vector insertion order.
func (c *Chunker) Split(sections []document.Section) []Chunk {
	var chunks []Chunk
	for _, s := range sections {
		for i, t := range c.windows(s.Body) {
			chunks = append(chunks, Chunk{
				ID:           len(chunks),
				Text:         t,
				SectionTitle: s.Title,
				SourceURL:    s.SourceURL,
				ChunkIndex:   i,
			})
		}
	}
	return chunks
}

func (c *Chunker) windows(body string) []string {
	runes := []rune(body)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{body}
	}

	step := c.size - c.overlap
	var out []string
	for start := 0; ; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return out
}

// ExpectedCount is the number of windows Split emits for a body of n runes.
func (c *Chunker) ExpectedCount(n int) int {
	if n == 0 {
		return 0
	}
	if n <= c.size {
		return 1
	}
	step := c.size - c.overlap
	return (n - c.overlap + step - 1) / step
}
