package retrieval

import (
	"fmt"
	"strings"

	"akar-rag/internal/vector"
)

// NotFoundPhrase is what the model is told to answer when the context does
// not contain the answer.
const NotFoundPhrase = "I couldn't find this information in the website knowledge base."

const systemTemplate = `You are the official AI assistant for AKAR Strategic Consultants.
Answer only from the context chunks below. Be concise and professional.
If the answer is not in the context, respond with exactly: "%s"
Only use URLs that appear in the context. Never invent one.

CONTEXT:
%s`

type Prompt struct {
	System string
	User   string
}

// BuildPrompt numbers the hits in the order given, which is score order.
func BuildPrompt(question string, hits []vector.Hit) Prompt {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[%d] %s | %s\n%s", i+1, h.Chunk.SectionTitle, h.Chunk.SourceURL, h.Chunk.Text)
	}
	return Prompt{
		System: fmt.Sprintf(systemTemplate, NotFoundPhrase, strings.Join(blocks, "\n\n---\n\n")),
		User:   question,
	}
}
