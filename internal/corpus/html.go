package corpus

import (
	"html"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

func isHTML(name string) bool {
	return hasExt(name, []string{".html", ".htm"})
}

// HTMLText extracts the readable body of an exported SOP page. Navigation and
// scripts are dropped; when readability finds no article the whole page is
// stripped to plain text instead.
func HTMLText(name, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	base := &url.URL{Scheme: "file", Path: "/" + filepath.Base(name)}
	article, err := readability.FromReader(strings.NewReader(raw), base)
	if err == nil {
		text := collapse(article.TextContent)
		if text != "" {
			title := collapse(article.Title)
			if title != "" && !strings.HasPrefix(text, title) {
				return title + "\n" + text
			}
			return text
		}
	}
	return stripHTML(raw)
}

// stripHTML removes every element and attribute, keeping words from adjacent
// blocks apart.
func stripHTML(raw string) string {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	spaced := strings.ReplaceAll(raw, "<", " <")
	return collapse(html.UnescapeString(strictPolicy.Sanitize(spaced)))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
