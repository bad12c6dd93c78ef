package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/sopguard/internal/deviation"
	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
	"github.com/mohammad-safakhou/sopguard/internal/search"
)

// NewID formats ids such as DEV-20240115-093000.
func NewID(prefix string, t time.Time) string {
	return prefix + "-" + t.Format("20060102-150405")
}

// Excerpt returns the first n runes of s, with "..." appended when s was longer.
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Generated is the caller-facing result of a deviation report.
type Generated struct {
	DeviationID string `json:"deviation_id"`
	Summary     string `json:"summary"`
}

// Writer drafts GMP deviation reports through the reasoning service and archives them.
type Writer struct {
	llm     reasoning.Completer
	archive *Archive
	logger  *log.Logger
	now     func() time.Time
}

func NewWriter(llm reasoning.Completer, archive *Archive, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(log.Writer(), "[REPORTS] ", log.LstdFlags)
	}
	return &Writer{llm: llm, archive: archive, logger: logger, now: time.Now}
}

// DeviationReport writes and stores the full report for one classified incident.
func (w *Writer) DeviationReport(ctx context.Context, incident string, rec deviation.Record, contexts []search.Result) (Generated, error) {
	now := w.now()
	id := NewID("DEV", now)
	analysis, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Generated{}, fmt.Errorf("encode record: %w", err)
	}
	prompt := fmt.Sprintf(`Generate a comprehensive pharmaceutical deviation report following GMP compliance standards:

DEVIATION ID: %s
INCIDENT: %s
DETECTION DATE: %s

ANALYSIS DATA:
%s

Create detailed report with:
1. Executive Summary
2. Deviation Classification
3. Detailed Event Description
4. Immediate Actions Taken
5. Impact Assessment
6. Root Cause Analysis
7. Corrective and Preventive Actions (CAPA)
8. Training Implications
9. Regulatory Compliance
10. Closure Requirements
`, id, incident, now.Format("2006-01-02 15:04:05"), analysis)
	if refs := search.DistinctLabels(contexts); len(refs) > 0 {
		prompt += "\nSOP REFERENCES:\n"
		for _, r := range refs {
			prompt += "- " + r + "\n"
		}
	}
	prompt += "\nFocus on pharmaceutical GMP compliance and regulatory requirements.\n"

	body, err := w.llm.Complete(ctx, prompt)
	if err != nil {
		w.logger.Printf("warn: report generation failed for %s: %v", id, err)
		return Generated{}, fmt.Errorf("generate report: %w", err)
	}
	r := rec
	doc, err := w.archive.Save(ctx, Document{
		ID:        id,
		Kind:      KindDeviation,
		Title:     fmt.Sprintf("%s %s deviation", titleCase(string(rec.Severity)), rec.Category),
		Body:      body,
		Incident:  incident,
		Record:    &r,
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return Generated{}, fmt.Errorf("archive report %s: %w", id, err)
	}
	return Generated{DeviationID: doc.ID, Summary: Excerpt(body, 500)}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
