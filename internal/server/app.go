package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/chunker"
	"github.com/mohammad-safakhou/sopguard/internal/compliance"
	"github.com/mohammad-safakhou/sopguard/internal/corpus"
	"github.com/mohammad-safakhou/sopguard/internal/deviation"
	"github.com/mohammad-safakhou/sopguard/internal/embedding"
	"github.com/mohammad-safakhou/sopguard/internal/kv"
	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
	"github.com/mohammad-safakhou/sopguard/internal/reports"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/sopqa"
	"github.com/mohammad-safakhou/sopguard/internal/telemetry"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

// App holds every constructed service. Build wires them in dependency order:
// storage and embedder first, then retrieval, then the reasoning consumers.
type App struct {
	Config     *config.Config
	KV         kv.Store
	Store      *vectorstore.Store
	Searcher   search.Searcher
	Ingester   *corpus.Ingester
	Classifier *deviation.Classifier
	QA         *sopqa.Service
	Archive    *reports.Archive
	Writer     *reports.Writer
	Analyzer   *compliance.Analyzer
	Telemetry  *telemetry.Telemetry
}

// OpenKV connects the configured key-value backend. Postgres is migrated first.
func OpenKV(ctx context.Context, cfg config.StorageConfig) (kv.Store, error) {
	switch cfg.Backend {
	case "redis":
		r := cfg.Redis
		client, err := kv.Conn(ctx, r.Host, r.Port, r.Password, r.DB, r.Timeout)
		if err != nil {
			return nil, err
		}
		return kv.NewRedisStore(client), nil
	case "postgres":
		dsn := cfg.Postgres.DSN()
		if err := kv.Migrate("file://"+cfg.MigrationsDir, dsn, "up", 0); err != nil {
			return nil, err
		}
		return kv.OpenPostgres(ctx, dsn)
	case "memory":
		return kv.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "hashing":
		return embedding.NewHashingEmbedder(cfg.Dimensions), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
}

// Build constructs the full service graph from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	tele, err := telemetry.Setup(telemetry.Options{Enabled: cfg.Telemetry.Enabled, ServiceName: cfg.Telemetry.ServiceName})
	if err != nil {
		return nil, err
	}
	store, err := OpenKV(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	emb, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, err
	}
	llm := reasoning.NewClient(reasoning.Config{
		BaseURL:       cfg.Reasoning.BaseURL,
		APIKey:        cfg.Reasoning.APIKey,
		Model:         cfg.Reasoning.Model,
		Temperature:   cfg.Reasoning.Temperature,
		MaxTokens:     cfg.Reasoning.MaxTokens,
		Timeout:       cfg.Reasoning.Timeout,
		RatePerSecond: cfg.Reasoning.RatePerSecond,
		Burst:         cfg.Reasoning.Burst,
	}, nil)
	catalog, err := compliance.LoadCatalog(cfg.Compliance.CatalogFile)
	if err != nil {
		store.Close()
		return nil, err
	}
	app, err := Assemble(ctx, cfg, store, emb, llm, catalog)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.Telemetry = tele
	return app, nil
}

// Assemble wires services over already-constructed collaborators.
func Assemble(ctx context.Context, cfg *config.Config, store kv.Store, emb embedding.Embedder, llm reasoning.Completer, catalog compliance.Catalog) (*App, error) {
	vs, err := vectorstore.New(store, emb, log.New(log.Writer(), "[INGEST] ", log.LstdFlags))
	if err != nil {
		return nil, err
	}
	archive, err := reports.Open(ctx, store, nil)
	if err != nil {
		return nil, err
	}
	searcher := search.NewEngine(vs, nil)
	r := cfg.Retrieval
	return &App{
		Config:     cfg,
		KV:         store,
		Store:      vs,
		Searcher:   searcher,
		Ingester:   corpus.NewIngester(vs, chunker.New(chunker.WithWindowSize(r.ChunkSize), chunker.WithOverlap(r.ChunkOverlap)), nil),
		Classifier: deviation.NewClassifier(searcher, llm, deviation.Options{TopK: r.TopK, MinScore: r.MinScore}, nil),
		QA:         sopqa.NewService(searcher, llm, r.TopK, r.MinScore, nil),
		Archive:    archive,
		Writer:     reports.NewWriter(llm, archive, nil),
		Analyzer: compliance.NewAnalyzer(searcher, llm, archive, compliance.Options{
			Catalog:     catalog,
			Parallelism: cfg.Compliance.Parallelism,
			MinScore:    r.MinScore,
		}, nil),
	}, nil
}

// Close releases the archive index, telemetry and storage connection.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Archive != nil {
		errs = append(errs, a.Archive.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	if a.KV != nil {
		errs = append(errs, a.KV.Close())
	}
	return errors.Join(errs...)
}
