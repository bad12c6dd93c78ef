// Package reports persists generated reports and makes them keyword-searchable.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/google/uuid"

	"github.com/mohammad-safakhou/sopguard/internal/deviation"
	"github.com/mohammad-safakhou/sopguard/internal/kv"
)

const keyPrefix = "report:"

type Kind string

const (
	KindDeviation Kind = "deviation"
	KindTraining  Kind = "training"
	KindTrends    Kind = "trends"
)

// Document is one archived report.
type Document struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Incident  string            `json:"incident,omitempty"`
	Record    *deviation.Record `json:"record,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Summary is the listing view of a Document.
type Summary struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a keyword search result.
type Hit struct {
	ID      string  `json:"id"`
	Kind    Kind    `json:"kind"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// indexed is what bleve sees for each document.
type indexed struct {
	Kind     string
	Title    string
	Body     string
	Incident string
}

// Archive stores reports in the KV backend and mirrors them into an in-memory bleve index.
type Archive struct {
	kv     kv.Store
	bleve  bleve.Index
	meta   map[string]Document
	mu     sync.RWMutex
	logger *log.Logger
}

// Open loads every stored report and builds the search index.
func Open(ctx context.Context, store kv.Store, logger *log.Logger) (*Archive, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[REPORTS] ", log.LstdFlags)
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create report index: %w", err)
	}
	a := &Archive{kv: store, bleve: index, meta: map[string]Document{}, logger: logger}

	keys, err := store.Keys(ctx, keyPrefix)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if len(keys) == 0 {
		return a, nil
	}
	values, err := store.GetMany(ctx, keys)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("load reports: %w", err)
	}
	for i, raw := range values {
		if raw == nil {
			continue
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			logger.Printf("warn: skipping unreadable report %s: %v", keys[i], err)
			continue
		}
		if err := a.index(doc); err != nil {
			logger.Printf("warn: index report %s: %v", doc.ID, err)
		}
	}
	logger.Printf("loaded %d reports", len(a.meta))
	return a, nil
}

func (a *Archive) index(doc Document) error {
	a.meta[doc.ID] = doc
	return a.bleve.Index(doc.ID, indexed{Kind: string(doc.Kind), Title: doc.Title, Body: doc.Body, Incident: doc.Incident})
}

// Save writes doc and returns it with ID and CreatedAt filled in. An ID that is
// already taken gets a random suffix instead of overwriting the earlier report.
func (a *Archive) Save(ctx context.Context, doc Document) (Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, taken := a.meta[doc.ID]; taken {
		doc.ID = doc.ID + "-" + uuid.NewString()[:8]
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode report: %w", err)
	}
	if err := a.kv.Set(ctx, keyPrefix+doc.ID, raw); err != nil {
		return Document{}, fmt.Errorf("store report: %w", err)
	}
	if err := a.index(doc); err != nil {
		a.logger.Printf("warn: index report %s: %v", doc.ID, err)
	}
	return doc, nil
}

// Get reads a report from the backing store.
func (a *Archive) Get(ctx context.Context, id string) (Document, error) {
	raw, err := a.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return doc, nil
}

// IsNotFound reports whether err means the report does not exist.
func IsNotFound(err error) bool { return errors.Is(err, kv.ErrNotFound) }

// List groups summaries by kind, newest first.
func (a *Archive) List() map[Kind][]Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := map[Kind][]Summary{KindDeviation: {}, KindTraining: {}, KindTrends: {}}
	for _, d := range a.sorted("") {
		out[d.Kind] = append(out[d.Kind], Summary{ID: d.ID, Kind: d.Kind, Title: d.Title, CreatedAt: d.CreatedAt})
	}
	return out
}

// Recent returns up to n reports of kind, newest first.
func (a *Archive) Recent(kind Kind, n int) []Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	docs := a.sorted(kind)
	if n >= 0 && len(docs) > n {
		docs = docs[:n]
	}
	return docs
}

// Count returns the number of reports of kind; an empty kind counts everything.
func (a *Archive) Count(kind Kind) int {
	return len(a.Recent(kind, -1))
}

func (a *Archive) sorted(kind Kind) []Document {
	docs := make([]Document, 0, len(a.meta))
	for _, d := range a.meta {
		if kind == "" || d.Kind == kind {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs
}

// Search runs a bleve query-string search over titles, bodies and incidents.
func (a *Archive) Search(q string, k int) ([]Hit, error) {
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if k <= 0 {
		k = 10
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	res, err := a.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for i, hit := range res.Hits {
		doc := a.meta[hit.ID]
		out = append(out, Hit{
			ID: hit.ID, Kind: doc.Kind, Title: doc.Title,
			Snippet: snippet(doc.Body), Score: hit.Score, Rank: i + 1,
		})
	}
	return out, nil
}

func (a *Archive) Close() error { return a.bleve.Close() }

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= 300 {
		return s
	}
	return string(r[:300]) + "..."
}
