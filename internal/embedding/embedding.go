// Package embedding turns text into vectors for similarity matching.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/event-assistant/pkg/metrics"
)

// ErrUnavailable is returned when no embedding backend is configured.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder maps texts to vectors. Empty input yields an empty result.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedOne embeds a single text. Blank text returns nil without error.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}

// Noop is used when no embedding model is configured. Callers fall back to
// their non-vector path.
type Noop struct{}

// Embed implements Embedder.
func (Noop) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return nil, ErrUnavailable
}

type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client  embeddingsAPI
	model   string
	timeout time.Duration
}

// NewOpenAIEmbedder creates an embedder for model (e.g. text-embedding-3-small).
func NewOpenAIEmbedder(apiKey, model string, timeout time.Duration) *OpenAIEmbedder {
	return newOpenAIEmbedder(openai.NewClient(apiKey), model, timeout)
}

func newOpenAIEmbedder(client embeddingsAPI, model string, timeout time.Duration) *OpenAIEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenAIEmbedder{client: client, model: model, timeout: timeout}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		metrics.RecordUpstreamFailure("embedding")
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float64(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
