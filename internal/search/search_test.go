package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/sopguard/internal/chunker"
	"github.com/mohammad-safakhou/sopguard/internal/embedding"
	"github.com/mohammad-safakhou/sopguard/internal/kv"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

type brokenKV struct{ *kv.MemoryStore }

func (brokenKV) Keys(context.Context, string) ([]string, error) {
	return nil, &kv.StorageError{Op: "scan", Err: errors.New("connection refused")}
}

func newEngine(t *testing.T, backend kv.Store) (*Engine, *vectorstore.Store) {
	t.Helper()
	st, err := vectorstore.New(backend, embedding.NewHashingEmbedder(256), nil)
	if err != nil {
		t.Fatalf("vectorstore: %v", err)
	}
	return NewEngine(st, nil), st
}

func TestSearchCleaningScenario(t *testing.T) {
	ctx := context.Background()
	eng, st := newEngine(t, kv.NewMemoryStore())

	doc := strings.TrimSpace(strings.Repeat("cleaning procedure step ", 400))
	chunks := chunker.Chunk(doc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if _, err := st.ReplaceAll(ctx, vectorstore.Reference, []vectorstore.Document{{SourceID: "sop_cleaning.pdf", Chunks: chunks}}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	results, err := eng.Search(ctx, vectorstore.Reference, "cleaning procedure", 3, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 || len(results) > 3 {
		t.Fatalf("expected 1..3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.SourceID != "sop_cleaning.pdf" {
			t.Fatalf("unexpected source %q", r.SourceID)
		}
		if r.Score <= 0.3 {
			t.Fatalf("score %f should be above threshold", r.Score)
		}
	}
}

func TestSearchEmptyNamespace(t *testing.T) {
	eng, _ := newEngine(t, kv.NewMemoryStore())
	results, err := eng.Search(context.Background(), vectorstore.IncidentSample, "anything", 5, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", results)
	}
}

func TestSearchStorageFailureYieldsEmpty(t *testing.T) {
	eng, _ := newEngine(t, brokenKV{kv.NewMemoryStore()})
	results, err := eng.Search(context.Background(), vectorstore.Reference, "anything", 3, 0.3)
	if err != nil {
		t.Fatalf("storage failures must not propagate: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	eng, _ := newEngine(t, kv.NewMemoryStore())
	_, err := eng.Search(context.Background(), vectorstore.Reference, "  ", 3, 0.3)
	var ve *vectorstore.ValidationError
	if !errors.As(err, &ve) || ve.Field != "query" {
		t.Fatalf("expected query validation error, got %v", err)
	}
}

func TestRankTruncatesBeforeThreshold(t *testing.T) {
	q := []float32{1, 0}
	chunks := []vectorstore.Chunk{
		{SourceID: "a", Text: "a", Vector: []float32{1, 0}},     // 1.0
		{SourceID: "b", Text: "b", Vector: []float32{0.2, 1}},   // ~0.196
		{SourceID: "c", Text: "c", Vector: []float32{1, 1}},     // ~0.707
		{SourceID: "d", Text: "d", Vector: []float32{-1, 0}},    // -1
		{SourceID: "e", Text: "e", Vector: []float32{0.3, 0.1}}, // ~0.949
	}

	got := Rank(q, chunks, 2, 0.3)
	if len(got) != 2 || got[0].SourceID != "a" || got[1].SourceID != "e" {
		t.Fatalf("unexpected top2: %+v", got)
	}

	// the best 4 include b (0.196); it is cut by the threshold afterwards, d never makes the top 4
	got = Rank(q, chunks, 4, 0.3)
	if len(got) != 3 {
		t.Fatalf("expected 3 results after threshold, got %+v", got)
	}
	for _, r := range got {
		if r.Score <= 0.3 {
			t.Fatalf("threshold violated: %+v", r)
		}
	}

	if got := Rank(q, chunks, 10, 0.99); len(got) != 1 || got[0].SourceID != "a" {
		t.Fatalf("expected only exact match above 0.99, got %+v", got)
	}
}

func TestCosine(t *testing.T) {
	if c := Cosine([]float32{1, 2}, []float32{2, 4}); c < 0.9999 {
		t.Fatalf("parallel vectors should score 1, got %f", c)
	}
	if c := Cosine([]float32{0, 0}, []float32{1, 1}); c != 0 {
		t.Fatalf("zero vector should score 0, got %f", c)
	}
	if c := Cosine([]float32{1}, []float32{1, 0}); c != 0 {
		t.Fatalf("mismatched dimensions should score 0, got %f", c)
	}
}

func TestDistinctLabels(t *testing.T) {
	got := DistinctLabels([]Result{{SourceID: "sop_cleaning.pdf"}, {SourceID: "sop_cleaning.pdf"}, {SourceID: "gowning_sop.txt"}})
	if len(got) != 2 || got[0] != "sop cleaning" || got[1] != "gowning sop" {
		t.Fatalf("unexpected labels: %v", got)
	}
}
