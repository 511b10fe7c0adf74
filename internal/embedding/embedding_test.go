package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	req  openai.EmbeddingRequest
	resp openai.EmbeddingResponse
	err  error
}

func (f *fakeAPI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.req = conv.Convert()
	return f.resp, f.err
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	api := &fakeAPI{resp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}}
	e := newOpenAIEmbedder(api, "text-embedding-3-small", time.Second)

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, openai.EmbeddingModel("text-embedding-3-small"), api.req.Model)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	api := &fakeAPI{err: errors.New("must not be called")}
	e := newOpenAIEmbedder(api, "", time.Second)

	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)

	vec, err := EmbedOne(context.Background(), e, "   ")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	e := newOpenAIEmbedder(&fakeAPI{err: errors.New("boom")}, "", time.Second)
	_, err := e.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)

	e = newOpenAIEmbedder(&fakeAPI{}, "", time.Second)
	_, err = e.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	_, err := EmbedOne(context.Background(), Noop{}, "hello")
	assert.ErrorIs(t, err, ErrUnavailable)

	vecs, err := Noop{}.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}
