package corpus

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/sopguard/internal/chunker"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

// Ingester chunks documents and replaces a namespace with them.
type Ingester struct {
	store   *vectorstore.Store
	chunker *chunker.Chunker
	logger  *log.Logger
}

func NewIngester(store *vectorstore.Store, c *chunker.Chunker, logger *log.Logger) *Ingester {
	if c == nil {
		c = chunker.New()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Ingester{store: store, chunker: c, logger: logger}
}

// IngestFiles replaces ns with files. Blank documents are skipped without embedding.
func (in *Ingester) IngestFiles(ctx context.Context, ns vectorstore.Namespace, files []File) (vectorstore.IngestReport, error) {
	docs := make([]vectorstore.Document, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Text) == "" {
			in.logger.Printf("warn: %s has no text, skipping", f.SourceID)
			continue
		}
		docs = append(docs, vectorstore.Document{SourceID: f.SourceID, Chunks: in.chunker.Chunk(f.Text)})
	}
	in.logger.Printf("ingesting %d documents into %s", len(docs), ns)
	return in.store.ReplaceAll(ctx, ns, docs)
}

// IngestDir loads dir and replaces ns with its contents. Unreadable files are
// reported as failed documents.
func (in *Ingester) IngestDir(ctx context.Context, ns vectorstore.Namespace, dir string, exts []string) (vectorstore.IngestReport, error) {
	files, failed, err := LoadDir(dir, exts)
	if err != nil {
		return vectorstore.IngestReport{Namespace: ns}, err
	}
	report, err := in.IngestFiles(ctx, ns, files)
	for name, ferr := range failed {
		in.logger.Printf("warn: read %s: %v", name, ferr)
		if report.Failed == nil {
			report.Failed = map[string]string{}
		}
		report.Failed[name] = ferr.Error()
	}
	return report, err
}
