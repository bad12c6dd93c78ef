// Package compliance runs canned high-risk queries over incident samples and folds
// the reasoning service's judgments into flags, trends and a dashboard score.
package compliance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/telemetry"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

const DefaultParallelism = 4

// CriticalAssessment is the reasoning service's verdict on one incident chunk.
type CriticalAssessment struct {
	IsCritical                 bool     `json:"is_critical"`
	RiskLevel                  string   `json:"risk_level"`
	ImmediateAttentionRequired bool     `json:"immediate_attention_required"`
	AffectedAreas              []string `json:"affected_areas"`
	PotentialImpact            string   `json:"potential_impact"`
	RecommendedActions         []string `json:"recommended_actions"`
}

// FlaggedDeviation wraps a chunk judged critical or major. The same chunk can be
// flagged once per canned query that retrieves it.
type FlaggedDeviation struct {
	Query      string             `json:"query"`
	Content    string             `json:"content"`
	SourceFile string             `json:"source_file"`
	Analysis   CriticalAssessment `json:"analysis"`
	Timestamp  time.Time          `json:"timestamp"`
}

type TrendAssessment struct {
	TrendIdentified     bool     `json:"trend_identified"`
	TrendType           string   `json:"trend_type"`
	Severity            string   `json:"severity"`
	RecurrenceFrequency string   `json:"recurrence_frequency"`
	RootCausePattern    string   `json:"root_cause_pattern"`
	DepartmentsAffected []string `json:"departments_affected"`
	RiskImplications    string   `json:"risk_implications"`
	PreventiveMeasures  []string `json:"preventive_measures"`
}

// TrendEntry is one canned pattern the reasoning service confirmed as a trend.
type TrendEntry struct {
	Pattern            string          `json:"pattern"`
	Analysis           TrendAssessment `json:"analysis"`
	SupportingEvidence []string        `json:"supporting_evidence"`
	Timestamp          time.Time       `json:"timestamp"`
}

type Options struct {
	Catalog     Catalog
	Parallelism int
	MinScore    float64
}

// Analyzer drives Similarity Search and the reasoning service over the canned catalog.
type Analyzer struct {
	searcher    search.Searcher
	llm         reasoning.Completer
	archive     Archive
	catalog     Catalog
	parallelism int
	minScore    float64
	logger      *log.Logger
	now         func() time.Time
}

func NewAnalyzer(searcher search.Searcher, llm reasoning.Completer, archive Archive, opts Options, logger *log.Logger) *Analyzer {
	if opts.Catalog.Critical.Queries == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.MinScore == 0 {
		opts.MinScore = search.DefaultMinScore
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPLIANCE] ", log.LstdFlags)
	}
	return &Analyzer{
		searcher: searcher, llm: llm, archive: archive,
		catalog: opts.Catalog, parallelism: opts.Parallelism, minScore: opts.MinScore,
		logger: logger, now: time.Now,
	}
}

// FlagCritical runs every critical query, asks for a verdict on each hit and keeps
// hits marked critical or rated critical/major. Failed calls drop only their entry.
func (a *Analyzer) FlagCritical(ctx context.Context) []FlaggedDeviation {
	set := a.catalog.Critical
	return fanOut(a.parallelism, set.Queries, func(query string) []FlaggedDeviation {
		hits := a.retrieve(ctx, query, set.TopK)
		var out []FlaggedDeviation
		for _, hit := range hits {
			reply, err := askVerdict(ctx, a.llm, criticalPrompt(hit.Text))
			if err != nil {
				a.logger.Printf("warn: critical analysis failed for %s: %v", hit.SourceID, err)
				telemetry.RecordAggregation(ctx, "critical", "failed")
				continue
			}
			assessment := reply.critical()
			if !assessment.IsCritical && assessment.RiskLevel != "critical" && assessment.RiskLevel != "major" {
				telemetry.RecordAggregation(ctx, "critical", "dropped")
				continue
			}
			telemetry.RecordAggregation(ctx, "critical", "kept")
			out = append(out, FlaggedDeviation{
				Query:      query,
				Content:    clip(hit.Text, 200),
				SourceFile: hit.SourceID,
				Analysis:   assessment,
				Timestamp:  a.now(),
			})
		}
		return out
	})
}

// AnalyzeTrends asks, per canned pattern, whether the retrieved incidents form a
// systematic trend. Patterns without any retrieved context are skipped.
func (a *Analyzer) AnalyzeTrends(ctx context.Context) []TrendEntry {
	set := a.catalog.Trends
	return fanOut(a.parallelism, set.Patterns, func(pattern string) []TrendEntry {
		hits := a.retrieve(ctx, pattern, set.TopK)
		if len(hits) == 0 {
			return nil
		}
		reply, err := askVerdict(ctx, a.llm, trendPrompt(pattern, hits))
		if err != nil {
			a.logger.Printf("warn: trend analysis failed for %q: %v", pattern, err)
			telemetry.RecordAggregation(ctx, "trends", "failed")
			return nil
		}
		trend := reply.trend()
		if !trend.TrendIdentified {
			telemetry.RecordAggregation(ctx, "trends", "dropped")
			return nil
		}
		telemetry.RecordAggregation(ctx, "trends", "kept")
		evidence := make([]string, len(hits))
		for i, h := range hits {
			evidence[i] = clip(h.Text, 150)
		}
		return []TrendEntry{{Pattern: pattern, Analysis: trend, SupportingEvidence: evidence, Timestamp: a.now()}}
	})
}

func (a *Analyzer) retrieve(ctx context.Context, query string, topK int) []search.Result {
	hits, err := a.searcher.Search(ctx, vectorstore.IncidentSample, query, topK, a.minScore)
	if err != nil {
		a.logger.Printf("warn: search %q failed: %v", query, err)
		return nil
	}
	return hits
}

// fanOut runs fn for every input with at most limit in flight and concatenates the
// results in input order. Branches never fail, so one branch cannot cancel another.
func fanOut[T any](limit int, inputs []string, fn func(string) []T) []T {
	slots := make([][]T, len(inputs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			slots[i] = fn(in)
			return nil
		})
	}
	_ = g.Wait()
	out := []T{}
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

// clip returns the first n runes of s followed by "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r) + "..."
}

func criticalPrompt(chunk string) string {
	return fmt.Sprintf(`Analyze this deviation content for critical risk factors:

CONTENT: %s

Return JSON analysis:
{
    "is_critical": boolean,
    "risk_level": "critical/major/moderate",
    "immediate_attention_required": boolean,
    "affected_areas": ["list of departments/systems"],
    "potential_impact": "description",
    "recommended_actions": ["list of actions"]
}
`, chunk)
}

func trendPrompt(pattern string, hits []search.Result) string {
	return fmt.Sprintf(`Analyze these deviation patterns for systematic non-compliance:

PATTERN: %s
DEVIATION CONTEXTS:
%s
Return JSON trend analysis:
{
    "trend_identified": boolean,
    "trend_type": "training/equipment/documentation/process/environmental/human_error",
    "severity": "high/medium/low",
    "recurrence_frequency": "description",
    "root_cause_pattern": "description",
    "departments_affected": ["list"],
    "risk_implications": "description",
    "preventive_measures": ["list of measures"]
}
`, pattern, formatContexts(hits))
}

func formatContexts(hits []search.Result) string {
	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, h.SourceID, h.Text)
	}
	return b.String()
}
