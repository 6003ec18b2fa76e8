package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"akar-rag/internal/middleware"
	"akar-rag/internal/retrieval"
	"akar-rag/internal/text"
	"akar-rag/internal/upstream"
	"akar-rag/internal/vector"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockGenerator struct{ mock.Mock }

func (m *MockGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Current(ctx context.Context) (*vector.Index, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vector.Index), args.Error(1)
}

// tableEmbedder returns a fixed vector per chunk text.
type tableEmbedder map[string][]float32

func (t tableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = t[s]
	}
	return out, nil
}

func buildIndex(t *testing.T) *vector.Index {
	t.Helper()
	chunks := []text.Chunk{
		{Text: "Strategy consulting", SectionTitle: "SERVICES", SourceURL: "https://akar.example/services"},
		{Text: "Advisory and research", SectionTitle: "SERVICES", SourceURL: "https://akar.example/services"},
		{Text: "Founded in Riyadh", SectionTitle: "ABOUT", SourceURL: "https://akar.example/about"},
	}
	ix, err := vector.Build(context.Background(), chunks, tableEmbedder{
		"Strategy consulting":   {1, 0, 0},
		"Advisory and research": {0.8, 0.6, 0},
		"Founded in Riyadh":     {0, 0, 1},
	}, 10)
	require.NoError(t, err)
	return ix
}

func TestService_Answer(t *testing.T) {
	ix := buildIndex(t)
	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	question := "What services does AKAR offer?"

	emb := new(MockEmbedder)
	gen := new(MockGenerator)
	idx := new(MockIndex)
	var logBuf bytes.Buffer

	idx.On("Current", ctx).Return(ix, nil)
	emb.On("Embed", ctx, question).Return([]float32{1, 0, 0}, nil)
	gen.On("Generate", ctx, mock.MatchedBy(func(system string) bool {
		return assert.Contains(t, system, "[1] SERVICES | https://akar.example/services\nStrategy consulting") &&
			assert.Contains(t, system, "[2] SERVICES | https://akar.example/services\nAdvisory and research")
	}), question).Return("AKAR offers strategy consulting.", nil)

	svc := retrieval.NewService(emb, idx, gen, retrieval.DefaultOptions(), retrieval.NewQueryLogger(&logBuf))
	got, err := svc.Answer(ctx, question)
	require.NoError(t, err)

	assert.Equal(t, "AKAR offers strategy consulting.", got.Answer)
	// top 1.0, second 0.8: both clear the medium bar
	assert.Equal(t, retrieval.ConfidenceHigh, got.Confidence)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "Strategy consulting", got.Sources[0].Snippet)
	assert.Equal(t, "ABOUT", got.Sources[1].SectionTitle)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
	assert.Equal(t, question, entry.Question)
	assert.Equal(t, "corr-1", entry.CorrelationID)
	assert.Equal(t, ix.Generation(), entry.Generation)
	assert.Equal(t, 3, entry.NumChunks)

	emb.AssertExpectations(t)
	gen.AssertExpectations(t)
}

func TestService_Answer_LowConfidenceStillHasSource(t *testing.T) {
	ix := buildIndex(t)
	ctx := context.Background()

	emb := new(MockEmbedder)
	gen := new(MockGenerator)
	idx := new(MockIndex)
	idx.On("Current", ctx).Return(ix, nil)
	emb.On("Embed", ctx, "weather?").Return([]float32{0, 1, 0.01}, nil)
	gen.On("Generate", ctx, mock.Anything, "weather?").Return(retrieval.NotFoundPhrase, nil)

	opts := retrieval.DefaultOptions()
	opts.Policy = retrieval.Policy{High: 0.95, Medium: 0.9}
	got, err := retrieval.NewService(emb, idx, gen, opts, nil).Answer(ctx, "weather?")
	require.NoError(t, err)

	assert.Equal(t, retrieval.ConfidenceLow, got.Confidence)
	assert.NotEmpty(t, got.Sources)
	assert.Equal(t, retrieval.NotFoundPhrase, got.Answer)
}

func TestService_Answer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Index Not Ready Before Any Provider Call", func(t *testing.T) {
		emb := new(MockEmbedder)
		gen := new(MockGenerator)
		idx := new(MockIndex)
		idx.On("Current", ctx).Return(nil, fmt.Errorf("%w: metadata.json missing", vector.ErrIndexNotReady))

		_, err := retrieval.NewService(emb, idx, gen, retrieval.DefaultOptions(), nil).Answer(ctx, "q")
		assert.ErrorIs(t, err, vector.ErrIndexNotReady)
		emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Embedding Failure", func(t *testing.T) {
		emb := new(MockEmbedder)
		gen := new(MockGenerator)
		idx := new(MockIndex)
		idx.On("Current", ctx).Return(buildIndex(t), nil)
		emb.On("Embed", ctx, "q").Return(nil, errors.New("quota"))

		_, err := retrieval.NewService(emb, idx, gen, retrieval.DefaultOptions(), nil).Answer(ctx, "q")
		assert.ErrorIs(t, err, upstream.ErrEmbeddingFailure)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Generation Failure Is Not Downgraded", func(t *testing.T) {
		emb := new(MockEmbedder)
		gen := new(MockGenerator)
		idx := new(MockIndex)
		idx.On("Current", ctx).Return(buildIndex(t), nil)
		emb.On("Embed", ctx, "q").Return([]float32{1, 0, 0}, nil)
		gen.On("Generate", ctx, mock.Anything, "q").Return("", errors.New("overloaded"))

		got, err := retrieval.NewService(emb, idx, gen, retrieval.DefaultOptions(), nil).Answer(ctx, "q")
		assert.Nil(t, got)
		assert.ErrorIs(t, err, upstream.ErrGenerationFailure)
	})

	t.Run("Generation Timeout", func(t *testing.T) {
		emb := new(MockEmbedder)
		gen := new(MockGenerator)
		idx := new(MockIndex)
		idx.On("Current", ctx).Return(buildIndex(t), nil)
		emb.On("Embed", ctx, "q").Return([]float32{1, 0, 0}, nil)
		gen.On("Generate", ctx, mock.Anything, "q").Return("", fmt.Errorf("%w: generate", upstream.ErrUpstreamTimeout))

		_, err := retrieval.NewService(emb, idx, gen, retrieval.DefaultOptions(), nil).Answer(ctx, "q")
		assert.ErrorIs(t, err, upstream.ErrUpstreamTimeout)
		assert.ErrorIs(t, err, upstream.ErrGenerationFailure)
	})

	t.Run("Dimension Mismatch", func(t *testing.T) {
		emb := new(MockEmbedder)
		gen := new(MockGenerator)
		idx := new(MockIndex)
		idx.On("Current", ctx).Return(buildIndex(t), nil)
		emb.On("Embed", ctx, "q").Return([]float32{1, 0}, nil)

		_, err := retrieval.NewService(emb, idx, gen, retrieval.DefaultOptions(), nil).Answer(ctx, "q")
		assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	})
}
