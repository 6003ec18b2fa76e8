package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"

	"akar-rag/internal/upstream"
)

type GeneratorOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

type Generator struct {
	client *genai.Client
	opts   GeneratorOptions
}

func NewGenerator(client *genai.Client, opts GeneratorOptions) *Generator {
	return &Generator{client: client, opts: opts}
}

// Generate runs one completion with system as the system instruction and
// returns the concatenated text of the first candidate.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	model := g.client.GenerativeModel(g.opts.Model)
	model.SetTemperature(g.opts.Temperature)
	model.SetMaxOutputTokens(g.opts.MaxTokens)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	var answer string
	err := upstream.Call(ctx, g.opts.Timeout, "generate", func(ctx context.Context) error {
		res, err := model.GenerateContent(ctx, genai.Text(user))
		if err != nil {
			return err
		}
		if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
			return fmt.Errorf("no candidates returned")
		}
		var b strings.Builder
		for _, p := range res.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		answer = strings.TrimSpace(b.String())
		if answer == "" {
			return fmt.Errorf("empty completion")
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", g.opts.Model, "error", err)
		return "", fmt.Errorf("%w: %w", upstream.ErrGenerationFailure, err)
	}
	return answer, nil
}
