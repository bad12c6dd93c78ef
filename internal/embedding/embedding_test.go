package embedding

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestHashingEmbedderDeterministicUnitVectors(t *testing.T) {
	e := NewHashingEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"Clean the mixing vessel", "clean THE mixing vessel!"})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Len(t, a[0], 64)
	assert.InDelta(t, 1.0, norm(a[0]), 1e-5)
	assert.Equal(t, a[0], a[1], "tokenisation should ignore case and punctuation")

	b, err := EmbedOne(ctx, e, "Clean the mixing vessel")
	require.NoError(t, err)
	assert.Equal(t, a[0], b)
}

func TestHashingEmbedderEmptyText(t *testing.T) {
	v, err := EmbedOne(context.Background(), NewHashingEmbedder(8), "   ")
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm(v))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	z := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, z)
}

func TestOpenAIEmbedderBatchesAndNormalises(t *testing.T) {
	var batches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		batches++
		if batches == 1 {
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,2]},{"index":0,"embedding":[3,4]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[5,0]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "k", Model: "m", BatchSize: 2})
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 2, batches)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 1.0, vecs[1][1], 1e-6)
	assert.InDelta(t, 1.0, vecs[2][0], 1e-6)
}

func TestOpenAIEmbedderWrapsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := e.Embed(context.Background(), []string{"a"})
	var ee *EmbeddingError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "m", ee.Model)
}
