// Package corpus reads procedure and deviation documents from disk.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// DocumentExtensions are the file types ingested by default. HTML exports are
// reduced to their readable text before chunking.
var DocumentExtensions = []string{".txt", ".md", ".html", ".htm"}

// ErrBadFilename is returned for upload names that are empty or have an unsupported extension.
var ErrBadFilename = errors.New("unsupported file name")

// File is one document's extracted text.
type File struct {
	SourceID string
	Text     string
}

// List returns the names of files in dir with one of exts, sorted. A missing dir is empty.
func List(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// LoadDir reads every matching file in dir. Unreadable files are returned in failed.
func LoadDir(dir string, exts []string) (files []File, failed map[string]error, err error) {
	names, err := List(dir, exts)
	if err != nil {
		return nil, nil, err
	}
	failed = map[string]error{}
	for _, name := range names {
		b, rerr := os.ReadFile(filepath.Join(dir, name))
		if rerr != nil {
			failed[name] = rerr
			continue
		}
		text := string(b)
		if isHTML(name) {
			text = HTMLText(name, text)
		}
		files = append(files, File{SourceID: name, Text: text})
	}
	return files, failed, nil
}

// SaveUpload writes r into dir under the base name of filename.
func SaveUpload(dir, filename string, r io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || !hasExt(name, DocumentExtensions) {
		return "", fmt.Errorf("%w: %q", ErrBadFilename, filename)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, f.Close()
}

func hasExt(name string, exts []string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(name)))
}
