package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gowningPage = `<!DOCTYPE html>
<html><head><title>SOP-017 Gowning</title><script>track("view")</script></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>SOP-017 Gowning</h1>
<p>Operators entering the Grade B cleanroom must don sterile gowns, gloves &amp; goggles in the airlock.</p>
<p>Gown integrity is inspected before entry. Any tear requires a full re-gown and a logbook entry.</p>
</article>
</body></html>`

func TestStripHTML(t *testing.T) {
	got := stripHTML(`<p>Clean&nbsp;the <b>hood</b></p><p>Log it</p><script>alert(1)</script>`)
	assert.Equal(t, "Clean the hood Log it", got)
}

func TestHTMLTextDropsMarkupAndScripts(t *testing.T) {
	text := HTMLText("sop_gowning.html", gowningPage)
	assert.Contains(t, text, "sterile gowns, gloves & goggles")
	assert.Contains(t, text, "Any tear requires a full re-gown")
	assert.NotContains(t, text, "track(")
	assert.NotContains(t, text, "<p>")
	assert.Empty(t, HTMLText("empty.html", "  \n"))
}

func TestLoadDirExtractsHTML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sop_gowning.html"), []byte(gowningPage), 0o644))

	files, failed, err := LoadDir(dir, DocumentExtensions)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.Len(t, files, 1)
	assert.Equal(t, "sop_gowning.html", files[0].SourceID)
	assert.NotContains(t, files[0].Text, "<article>")
	assert.Contains(t, files[0].Text, "Grade B cleanroom")
}
