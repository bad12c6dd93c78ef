// Package search ranks stored chunks against a query by cosine similarity.
package search

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/sopguard/internal/embedding"
	"github.com/mohammad-safakhou/sopguard/internal/telemetry"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

const (
	DefaultTopK     = 3
	DefaultMinScore = 0.3
)

// Result is one retrieved chunk.
type Result struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Index    int     `json:"index"`
	Score    float64 `json:"score"`
}

// Searcher is what retrieval consumers depend on.
type Searcher interface {
	Search(ctx context.Context, ns vectorstore.Namespace, query string, topK int, minScore float64) ([]Result, error)
}

// Engine scans a namespace linearly.
type Engine struct {
	store  *vectorstore.Store
	logger *log.Logger
}

var _ Searcher = (*Engine)(nil)

func NewEngine(store *vectorstore.Store, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Engine{store: store, logger: logger}
}

// Search embeds query, ranks every chunk in ns, keeps the best topK and then drops
// anything scoring at or below minScore. Storage failures yield an empty result;
// validation and embedding failures are returned.
func (e *Engine) Search(ctx context.Context, ns vectorstore.Namespace, query string, topK int, minScore float64) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &vectorstore.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if !ns.Valid() {
		return nil, &vectorstore.ValidationError{Field: "namespace", Reason: "unknown namespace " + string(ns)}
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	chunks, err := e.store.GetAll(ctx, ns)
	if err != nil {
		e.logger.Printf("warn: %s search failed: %v", ns, err)
		telemetry.RecordSearch(ctx, string(ns), 0)
		return []Result{}, nil
	}
	if len(chunks) == 0 {
		telemetry.RecordSearch(ctx, string(ns), 0)
		return []Result{}, nil
	}

	q, err := embedding.EmbedOne(ctx, e.store.Embedder(), query)
	if err != nil {
		var ee *embedding.EmbeddingError
		if !errors.As(err, &ee) {
			err = &embedding.EmbeddingError{Model: e.store.Embedder().Model(), Err: err}
		}
		return nil, err
	}

	results := Rank(q, chunks, topK, minScore)
	telemetry.RecordSearch(ctx, string(ns), len(results))
	return results, nil
}

// Rank scores chunks against q, truncates to topK and then applies the minScore cutoff.
func Rank(q []float32, chunks []vectorstore.Chunk, topK int, minScore float64) []Result {
	scored := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, Result{Text: c.Text, SourceID: c.SourceID, Index: c.Index, Score: Cosine(q, c.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	out := make([]Result, 0, len(scored))
	for _, r := range scored {
		if r.Score > minScore {
			out = append(out, r)
		}
	}
	return out
}

// Cosine returns dot(a,b)/(|a||b|), or 0 when either vector is zero or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SourceLabel turns a source id such as "sop_cleaning.pdf" into "sop cleaning".
func SourceLabel(sourceID string) string {
	label := strings.ReplaceAll(sourceID, "_", " ")
	for _, ext := range []string{".pdf", ".txt", ".md", ".html", ".htm"} {
		label = strings.TrimSuffix(label, ext)
	}
	return label
}

// DistinctLabels returns SourceLabel for each result, first occurrence order, no repeats.
func DistinctLabels(results []Result) []string {
	seen := map[string]struct{}{}
	labels := []string{}
	for _, r := range results {
		l := SourceLabel(r.SourceID)
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}
