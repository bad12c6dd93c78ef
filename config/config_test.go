package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "storage:\n  backend: memory\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":10001" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Reasoning.Model != "llama-3.3-70b-versatile" || cfg.Reasoning.Temperature != 0.1 || cfg.Reasoning.MaxTokens != 4000 {
		t.Fatalf("unexpected reasoning defaults %+v", cfg.Reasoning)
	}
	if cfg.Reasoning.Timeout != 60*time.Second {
		t.Fatalf("reasoning timeout = %v", cfg.Reasoning.Timeout)
	}
	if cfg.Retrieval.ChunkSize != 500 || cfg.Retrieval.ChunkOverlap != 50 || cfg.Retrieval.TopK != 3 || cfg.Retrieval.MinScore != 0.3 {
		t.Fatalf("unexpected retrieval defaults %+v", cfg.Retrieval)
	}
	if cfg.Compliance.Parallelism != 4 {
		t.Fatalf("parallelism = %d", cfg.Compliance.Parallelism)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SOPGUARD_STORAGE_BACKEND", "memory")
	t.Setenv("SOPGUARD_RETRIEVAL_TOP_K", "7")
	t.Setenv("SOPGUARD_REASONING_TIMEOUT", "15s")
	cfg, err := LoadConfig(writeConfig(t, "storage:\n  backend: postgres\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Fatalf("top_k = %d", cfg.Retrieval.TopK)
	}
	if cfg.Reasoning.Timeout != 15*time.Second {
		t.Fatalf("timeout = %v", cfg.Reasoning.Timeout)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"backend":  "storage:\n  backend: etcd\n",
		"overlap":  "storage:\n  backend: memory\nretrieval:\n  chunk_size: 100\n  chunk_overlap: 100\n",
		"provider": "storage:\n  backend: memory\nembedding:\n  provider: word2vec\n",
		"postgres": "storage:\n  backend: postgres\n  postgres:\n    host: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "sop"}
	if got := p.DSN(); got != "postgres://u:p@db:5432/sop?sslmode=disable" {
		t.Fatalf("dsn = %q", got)
	}
	p.URL = "postgres://elsewhere/x"
	if got := p.DSN(); got != p.URL {
		t.Fatalf("dsn = %q", got)
	}
}

func TestCorpusNormalize(t *testing.T) {
	c := CorpusConfig{SOPDir: "data//sops/", SampleDir: ""}.Normalize()
	if c.SOPDir != filepath.Clean("data/sops") || c.SampleDir != "" {
		t.Fatalf("unexpected %+v", c)
	}
	if !strings.Contains(ComplianceConfig{CatalogFile: " x.yaml "}.Normalize().CatalogFile, "x.yaml") {
		t.Fatalf("catalog file not trimmed")
	}
}
