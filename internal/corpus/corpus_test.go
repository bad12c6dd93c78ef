package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sopguard/internal/chunker"
	"github.com/mohammad-safakhou/sopguard/internal/embedding"
	"github.com/mohammad-safakhou/sopguard/internal/kv"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

func TestListAndLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sop_b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sop_a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755))

	names, err := List(dir, DocumentExtensions)
	require.NoError(t, err)
	assert.Equal(t, []string{"sop_a.md", "sop_b.txt"}, names)

	files, failed, err := LoadDir(dir, DocumentExtensions)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].Text)

	missing, err := List(filepath.Join(dir, "nope"), DocumentExtensions)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()
	name, err := SaveUpload(dir, "../../etc/sop_gowning.txt", strings.NewReader("gown up"))
	require.NoError(t, err)
	assert.Equal(t, "sop_gowning.txt", name)
	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "gown up", string(b))

	_, err = SaveUpload(dir, "malware.exe", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrBadFilename))
	_, err = SaveUpload(dir, "", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrBadFilename))
}

func TestEnsureSamples(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "samples")
	n, err := EnsureSamples(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = EnsureSamples(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	names, err := List(dir, []string{".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sample_deviation_1.txt", "sample_deviation_2.txt", "sample_deviation_3.txt", "sample_deviation_4.txt"}, names)
	assert.Contains(t, SampleDeviations()[0].Text, "DEV-2024-001")
}

func TestIngestDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sop_cleaning.txt"), []byte(strings.Repeat("clean the vessel ", 400)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blank.txt"), []byte("   \n"), 0o644))

	store, err := vectorstore.New(kv.NewMemoryStore(), embedding.NewHashingEmbedder(64), nil)
	require.NoError(t, err)
	in := NewIngester(store, chunker.New(), nil)

	report, err := in.IngestDir(ctx, vectorstore.Reference, dir, DocumentExtensions)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 3, report.Stored)

	sources, err := store.Sources(ctx, vectorstore.Reference)
	require.NoError(t, err)
	assert.Equal(t, []string{"sop_cleaning.txt"}, sources)
}
