// Package vectorstore persists embedded chunks in a key-value backend, partitioned by namespace.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/sopguard/internal/embedding"
	"github.com/mohammad-safakhou/sopguard/internal/kv"
	"github.com/mohammad-safakhou/sopguard/internal/telemetry"
)

// Chunk is one stored window of a source document with its embedding.
type Chunk struct {
	SourceID string    `json:"source_id"`
	Index    int       `json:"index"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"-"`
}

// Document is already-extracted plain text for one source.
type Document struct {
	SourceID string
	Chunks   []string
}

// IngestReport summarises a batch ingest.
type IngestReport struct {
	Namespace Namespace         `json:"namespace"`
	Documents int               `json:"documents"`
	Stored    int               `json:"chunks_stored"`
	Skipped   int               `json:"chunks_skipped"`
	Failed    map[string]string `json:"failed_documents,omitempty"`
}

// Store owns every chunk. Writers to a namespace exclude its readers.
type Store struct {
	kv       kv.Store
	embedder embedding.Embedder
	logger   *log.Logger
	locks    map[Namespace]*sync.RWMutex
}

// New builds a Store. The backend and embedder must be ready before ingest or search run.
func New(backend kv.Store, embedder embedding.Embedder, logger *log.Logger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("vectorstore requires a key-value backend")
	}
	if embedder == nil {
		return nil, errors.New("vectorstore requires an embedder")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	locks := make(map[Namespace]*sync.RWMutex, len(Namespaces))
	for _, ns := range Namespaces {
		locks[ns] = &sync.RWMutex{}
	}
	return &Store{kv: backend, embedder: embedder, logger: logger, locks: locks}, nil
}

// Embedder exposes the embedding capability so searches embed queries with the same model.
func (s *Store) Embedder() embedding.Embedder { return s.embedder }

func (s *Store) lock(ns Namespace) (*sync.RWMutex, error) {
	mu, ok := s.locks[ns]
	if !ok {
		return nil, &ValidationError{Field: "namespace", Reason: fmt.Sprintf("unknown namespace %q", ns)}
	}
	return mu, nil
}

// ReplaceNamespace drops every chunk in ns.
func (s *Store) ReplaceNamespace(ctx context.Context, ns Namespace) error {
	mu, err := s.lock(ns)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	return s.clear(ctx, ns)
}

func (s *Store) clear(ctx context.Context, ns Namespace) error {
	n, err := s.kv.DeletePrefix(ctx, ns.Prefix()+":")
	if err != nil {
		return fmt.Errorf("clear namespace %s: %w", ns, err)
	}
	s.logger.Printf("cleared %d keys from namespace %s", n, ns)
	return nil
}

// Ingest embeds chunks and stores them under (ns, sourceID, index).
// Embedding failure aborts the document; a chunk that fails to store is logged and skipped.
func (s *Store) Ingest(ctx context.Context, ns Namespace, sourceID string, chunks []string) (IngestReport, error) {
	mu, err := s.lock(ns)
	if err != nil {
		return IngestReport{}, err
	}
	mu.Lock()
	defer mu.Unlock()

	report := IngestReport{Namespace: ns, Documents: 1}
	stored, skipped, err := s.ingest(ctx, ns, sourceID, chunks)
	report.Stored, report.Skipped = stored, skipped
	return report, err
}

// ReplaceAll clears ns and ingests docs while holding the namespace write lock.
// A document that cannot be embedded is recorded in Failed and the rest continue.
func (s *Store) ReplaceAll(ctx context.Context, ns Namespace, docs []Document) (IngestReport, error) {
	mu, err := s.lock(ns)
	if err != nil {
		return IngestReport{}, err
	}
	mu.Lock()
	defer mu.Unlock()

	if err := s.clear(ctx, ns); err != nil {
		return IngestReport{Namespace: ns}, err
	}
	report := IngestReport{Namespace: ns, Failed: map[string]string{}}
	for _, doc := range docs {
		stored, skipped, err := s.ingest(ctx, ns, doc.SourceID, doc.Chunks)
		report.Stored += stored
		report.Skipped += skipped
		if err != nil {
			s.logger.Printf("warn: ingest %s/%s failed: %v", ns, doc.SourceID, err)
			report.Failed[doc.SourceID] = err.Error()
			continue
		}
		if stored > 0 {
			report.Documents++
		}
	}
	if len(report.Failed) == 0 {
		report.Failed = nil
	}
	s.logger.Printf("namespace %s: %d documents, %d chunks stored, %d skipped", ns, report.Documents, report.Stored, report.Skipped)
	return report, nil
}

func (s *Store) ingest(ctx context.Context, ns Namespace, sourceID string, chunks []string) (int, int, error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, 0, &ValidationError{Field: "source_id", Reason: "must not be empty"}
	}
	if len(chunks) == 0 {
		return 0, 0, nil
	}
	vecs, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, 0, err
	}
	if len(vecs) != len(chunks) {
		return 0, 0, &embedding.EmbeddingError{Model: s.embedder.Model(), Err: fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vecs))}
	}

	stored, skipped := 0, 0
	for i, text := range chunks {
		if err := s.put(ctx, ns, sourceID, i, text, vecs[i]); err != nil {
			s.logger.Printf("warn: failed to store %s: %v", chunkKey(ns, sourceID, i), err)
			skipped++
			continue
		}
		stored++
	}
	telemetry.RecordIngest(ctx, string(ns), "stored", stored)
	telemetry.RecordIngest(ctx, string(ns), "skipped", skipped)
	return stored, skipped, nil
}

func (s *Store) put(ctx context.Context, ns Namespace, sourceID string, index int, text string, vec []float32) error {
	base := chunkKey(ns, sourceID, index)
	// text goes last: a chunk is only enumerable once all three parts exist
	if err := s.kv.Set(ctx, base+":"+suffixFile, []byte(sourceID)); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, base+":"+suffixVector, encodeVector(vec)); err != nil {
		return err
	}
	return s.kv.Set(ctx, base+":"+suffixText, []byte(text))
}

// Get returns one chunk; ok is false when it is absent or incomplete.
func (s *Store) Get(ctx context.Context, ns Namespace, sourceID string, index int) (Chunk, bool, error) {
	mu, err := s.lock(ns)
	if err != nil {
		return Chunk{}, false, err
	}
	mu.RLock()
	defer mu.RUnlock()

	chunks, err := s.load(ctx, ns, []string{chunkKey(ns, sourceID, index)})
	if err != nil {
		return Chunk{}, false, err
	}
	if len(chunks) == 0 {
		return Chunk{}, false, nil
	}
	return chunks[0], true, nil
}

// GetAll materialises every complete chunk in ns, ordered by source and index.
func (s *Store) GetAll(ctx context.Context, ns Namespace) ([]Chunk, error) {
	mu, err := s.lock(ns)
	if err != nil {
		return nil, err
	}
	mu.RLock()
	defer mu.RUnlock()

	keys, err := s.kv.Keys(ctx, ns.Prefix()+":")
	if err != nil {
		return nil, fmt.Errorf("list namespace %s: %w", ns, err)
	}
	var bases []string
	for _, k := range keys {
		if base, ok := strings.CutSuffix(k, ":"+suffixText); ok {
			bases = append(bases, base)
		}
	}
	if len(bases) == 0 {
		return nil, nil
	}
	chunks, err := s.load(ctx, ns, bases)
	if err != nil {
		return nil, err
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SourceID != chunks[j].SourceID {
			return chunks[i].SourceID < chunks[j].SourceID
		}
		return chunks[i].Index < chunks[j].Index
	})
	return chunks, nil
}

func (s *Store) load(ctx context.Context, ns Namespace, bases []string) ([]Chunk, error) {
	keys := make([]string, 0, 3*len(bases))
	for _, b := range bases {
		keys = append(keys, b+":"+suffixText, b+":"+suffixFile, b+":"+suffixVector)
	}
	vals, err := s.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks from %s: %w", ns, err)
	}
	chunks := make([]Chunk, 0, len(bases))
	for i, base := range bases {
		text, file, raw := vals[3*i], vals[3*i+1], vals[3*i+2]
		if text == nil || file == nil || raw == nil {
			continue
		}
		vec, err := decodeVector(raw)
		if err != nil {
			s.logger.Printf("warn: skipping %s: %v", base, err)
			continue
		}
		_, idx, ok := splitChunkKey(ns, base)
		if !ok {
			s.logger.Printf("warn: skipping malformed key %s", base)
			continue
		}
		chunks = append(chunks, Chunk{SourceID: string(file), Index: idx, Text: string(text), Vector: vec})
	}
	return chunks, nil
}

// Sources lists the distinct source ids stored in ns.
func (s *Store) Sources(ctx context.Context, ns Namespace) ([]string, error) {
	chunks, err := s.GetAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		out = append(out, c.SourceID)
	}
	return out, nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.kv.Ping(ctx) }
