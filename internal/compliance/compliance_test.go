package compliance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/sopguard/internal/kv"
	"github.com/mohammad-safakhou/sopguard/internal/reports"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

type mapSearcher map[string][]search.Result

func (m mapSearcher) Search(_ context.Context, ns vectorstore.Namespace, q string, topK int, _ float64) ([]search.Result, error) {
	if ns != vectorstore.IncidentSample {
		return nil, errors.New("unexpected namespace " + string(ns))
	}
	hits := m[q]
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

type completerFunc func(prompt string) (string, error)

func (f completerFunc) Complete(_ context.Context, prompt string) (string, error) { return f(prompt) }

func hit(text, src string) search.Result { return search.Result{Text: text, SourceID: src, Score: 0.8} }

func fixedClock() time.Time { return time.Date(2024, 5, 2, 14, 3, 9, 0, time.UTC) }

func newAnalyzer(s search.Searcher, llm completerFunc, archive Archive) *Analyzer {
	a := NewAnalyzer(s, llm, archive, Options{Parallelism: 3}, nil)
	a.now = fixedClock
	return a
}

func TestComplianceScoreBounds(t *testing.T) {
	for c := 0; c <= 25; c++ {
		for m := 0; m <= 25; m++ {
			for total := 0; total <= 60; total += 3 {
				s := ComplianceScore(c, m, total)
				if s < 0 || s > 100 {
					t.Fatalf("score(%d,%d,%d) = %d out of range", c, m, total, s)
				}
			}
		}
	}
	assert.Equal(t, 100, ComplianceScore(0, 0, 0))
	assert.Equal(t, 81, ComplianceScore(1, 1, 4))
	assert.Equal(t, 85, ComplianceScore(1, 1, 0), "minor count never negative")
	assert.Equal(t, 0, ComplianceScore(10, 0, 0))
}

func TestDistribute(t *testing.T) {
	flagged := []FlaggedDeviation{
		{Analysis: CriticalAssessment{RiskLevel: "critical"}},
		{Analysis: CriticalAssessment{RiskLevel: "major"}},
		{Analysis: CriticalAssessment{RiskLevel: "major"}},
		{Analysis: CriticalAssessment{IsCritical: true, RiskLevel: "moderate"}},
	}
	d := Distribute(flagged, 10)
	assert.Equal(t, SeverityDistribution{CriticalCount: 1, MajorCount: 2, MinorCount: 7, CriticalPercentage: 10, ComplianceScore: 66}, d)

	third := Distribute(flagged[:1], 3)
	assert.Equal(t, 33.3, third.CriticalPercentage)
	assert.Equal(t, 0.0, Distribute(nil, 0).CriticalPercentage)
}

func TestFlagCriticalIsolatesFailuresAndKeepsOrder(t *testing.T) {
	q := DefaultCatalog().Critical.Queries
	shared := hit("Temperature reached 12C in RM-05 for 4 hours", "sample_deviation_1.txt")
	s := mapSearcher{
		q[0]: {shared, hit("Compression machine CM-02 drifted", "sample_deviation_2.txt")},
		q[1]: {shared},
		q[2]: {hit("tablet hardness OOS", "sample_deviation_2.txt")},
		q[3]: {hit("missing signatures", "sample_deviation_3.txt")},
	}
	llm := completerFunc(func(p string) (string, error) {
		switch {
		case strings.Contains(p, "tablet hardness"):
			return "", errors.New("reasoning service returned 500")
		case strings.Contains(p, "missing signatures"):
			return `{"is_critical": false, "risk_level": "moderate"}`, nil
		case strings.Contains(p, "CM-02"):
			return "```json\n{\"is_critical\": false, \"risk_level\": \"Major\", \"recommended_actions\": [\"Recalibrate\"]}\n```", nil
		}
		return `{"is_critical": true, "risk_level": "critical", "recommended_actions": ["Quarantine"]}`, nil
	})

	flagged := newAnalyzer(s, llm, nil).FlagCritical(context.Background())

	require.Len(t, flagged, 3)
	assert.Equal(t, q[0], flagged[0].Query)
	assert.Equal(t, "sample_deviation_1.txt", flagged[0].SourceFile)
	assert.Equal(t, "major", flagged[1].Analysis.RiskLevel)
	assert.Equal(t, q[1], flagged[2].Query, "same chunk surfaces again for a second query")
	assert.Equal(t, "Temperature reached 12C in RM-05 for 4 hours...", flagged[2].Content)
	assert.Equal(t, fixedClock(), flagged[0].Timestamp)
}

func TestFlagCriticalClipsContent(t *testing.T) {
	long := strings.Repeat("x", 250)
	s := mapSearcher{DefaultCatalog().Critical.Queries[0]: {hit(long, "a.txt")}}
	llm := completerFunc(func(string) (string, error) { return `{"is_critical": true, "risk_level": "critical"}`, nil })
	flagged := newAnalyzer(s, llm, nil).FlagCritical(context.Background())
	require.Len(t, flagged, 1)
	assert.Equal(t, strings.Repeat("x", 200)+"...", flagged[0].Content)
}

func TestAnalyzeTrendsSkipsPatternsWithoutContext(t *testing.T) {
	p := DefaultCatalog().Trends.Patterns
	s := mapSearcher{
		p[1]: {hit("GDP training gap, 3rd in 45 days", "sample_deviation_3.txt")},
		p[4]: {hit("particle count exceedance", "sample_deviation_4.txt"), hit("HVAC filter overdue", "sample_deviation_4.txt")},
	}
	var calls atomic.Int32
	llm := completerFunc(func(prompt string) (string, error) {
		calls.Add(1)
		if strings.Contains(prompt, "GDP training gap") {
			return `{"trend_identified": true, "trend_type": "training", "severity": "high", "departments_affected": ["manufacturing"]}`, nil
		}
		return `{"trend_identified": false}`, nil
	})

	trends := newAnalyzer(s, llm, nil).AnalyzeTrends(context.Background())

	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, trends, 1)
	assert.Equal(t, p[1], trends[0].Pattern)
	assert.Equal(t, "training", trends[0].Analysis.TrendType)
	assert.Equal(t, []string{"GDP training gap, 3rd in 45 days..."}, trends[0].SupportingEvidence)
}

func TestLooselyTypedVerdictFieldsKeepEntries(t *testing.T) {
	q := DefaultCatalog().Critical.Queries[0]
	p := DefaultCatalog().Trends.Patterns[0]
	s := mapSearcher{
		q: {hit("Pallet stored outside the cold room", "sample_deviation_1.txt")},
		p: {hit("Pallet stored outside the cold room", "sample_deviation_1.txt")},
	}
	llm := completerFunc(func(prompt string) (string, error) {
		if strings.Contains(prompt, "trend_identified") {
			return `{"trend_identified": true, "recurrence_frequency": 3, "departments_affected": "Warehouse"}`, nil
		}
		return `{"is_critical": true, "risk_level": "Critical", "affected_areas": "Warehouse", "immediate_attention_required": "true"}`, nil
	})
	a := newAnalyzer(s, llm, nil)

	flagged := a.FlagCritical(context.Background())
	require.Len(t, flagged, 1)
	assert.Equal(t, "critical", flagged[0].Analysis.RiskLevel)
	assert.True(t, flagged[0].Analysis.ImmediateAttentionRequired)
	assert.Equal(t, []string{"Warehouse"}, flagged[0].Analysis.AffectedAreas)
	assert.Equal(t, []string{}, flagged[0].Analysis.RecommendedActions)

	trends := a.AnalyzeTrends(context.Background())
	require.Len(t, trends, 1)
	assert.Equal(t, "3", trends[0].Analysis.RecurrenceFrequency)
	assert.Equal(t, []string{"Warehouse"}, trends[0].Analysis.DepartmentsAffected)
}

func TestRecommendFallbacks(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
		want  Recommendations
	}{
		{"no object", "I recommend more training.", nil, DefaultRecommendations()},
		{"call failed", "", errors.New("timeout"), MinimalRecommendations()},
		{"malformed object", "{immediate_actions: nope}", nil, MinimalRecommendations()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := completerFunc(func(string) (string, error) { return tc.reply, tc.err })
			got := newAnalyzer(mapSearcher{}, llm, nil).Recommend(context.Background(), nil, nil)
			assert.Equal(t, tc.want, got)
		})
	}

	llm := completerFunc(func(p string) (string, error) {
		if !strings.Contains(p, "2 flagged issues with risk levels: [critical, major]") {
			return "", errors.New("unexpected prompt")
		}
		return `{"immediate_actions": ["Hold batch TAB-456"]}`, nil
	})
	flagged := []FlaggedDeviation{{Analysis: CriticalAssessment{RiskLevel: "critical"}}, {Analysis: CriticalAssessment{RiskLevel: "major"}}}
	got := newAnalyzer(mapSearcher{}, llm, nil).Recommend(context.Background(), flagged, nil)
	assert.Equal(t, []string{"Hold batch TAB-456"}, got.ImmediateActions)
	assert.Equal(t, DefaultRecommendations().MonitoringEnhancements, got.MonitoringEnhancements)
}

func TestAlertsAreLimited(t *testing.T) {
	s := mapSearcher{}
	for _, q := range DefaultCatalog().Critical.Queries {
		s[q] = []search.Result{hit("a "+q, "1.txt"), hit("b "+q, "2.txt")}
	}
	llm := completerFunc(func(string) (string, error) {
		return `{"is_critical": true, "risk_level": "critical", "recommended_actions": ["Notify QA"]}`, nil
	})
	alerts := newAnalyzer(s, llm, nil).Alerts(context.Background())
	require.Len(t, alerts, 5)
	assert.Equal(t, "ALERT-140309-0", alerts[0].AlertID)
	assert.Equal(t, "ALERT-140309-4", alerts[4].AlertID)
	assert.Equal(t, "critical_deviation", alerts[0].Type)
	assert.Equal(t, []string{"Notify QA"}, alerts[0].ImmediateActions)
}

func TestDashboard(t *testing.T) {
	q := DefaultCatalog().Critical.Queries
	s := mapSearcher{q[0]: {hit("cold room excursion", "sample_deviation_1.txt")}}
	llm := completerFunc(func(p string) (string, error) {
		if strings.Contains(p, "critical risk factors") {
			return `{"is_critical": true, "risk_level": "critical"}`, nil
		}
		return "no structured output", nil
	})
	d := newAnalyzer(s, llm, nil).Dashboard(context.Background(), 4)

	assert.Equal(t, "DASH-20240502-140309", d.DashboardID)
	assert.Equal(t, 4, d.Metrics.TotalDeviationsAnalyzed)
	assert.Equal(t, 1, d.Metrics.CriticalDeviationsFlagged)
	assert.Equal(t, 0, d.Metrics.NonComplianceTrendsIdentified)
	assert.Equal(t, 3, d.Metrics.SeverityDistribution.MinorCount)
	assert.Equal(t, 84, d.Metrics.OverallComplianceScore)
	assert.Equal(t, 25.0, d.Metrics.SeverityDistribution.CriticalPercentage)
	assert.Equal(t, DefaultRecommendations(), d.Recommendations)
	assert.NotNil(t, d.ComplianceTrends)
}

func TestDeviationTrendsArchivesReport(t *testing.T) {
	ctx := context.Background()
	archive, err := reports.Open(ctx, kv.NewMemoryStore(), nil)
	require.NoError(t, err)
	defer archive.Close()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		_, err := archive.Save(ctx, reports.Document{Kind: reports.KindDeviation, Body: strings.Repeat("r", 1500), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	s := mapSearcher{DefaultCatalog().TrendReport.Query: {hit("HVAC malfunction", "sample_deviation_1.txt")}}
	var first string
	llm := completerFunc(func(p string) (string, error) {
		if strings.HasPrefix(p, "Analyze pharmaceutical deviation trends") {
			first = p
			return "Equipment issues dominate.", nil
		}
		return "Train operators on alarm response.", nil
	})

	out, err := newAnalyzer(s, llm, archive).DeviationTrends(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TRENDS-20240502-140309", out.AnalysisID)
	assert.Equal(t, 5, out.ReportsAnalyzed)
	assert.Equal(t, 1, out.HistoricalPatternsUsed)
	assert.Equal(t, "Train operators on alarm response.", out.TrainingRecommendations)
	assert.NotContains(t, first, strings.Repeat("r", 1001))
	assert.Equal(t, 1, archive.Count(reports.KindTrends))
}

func TestRetraining(t *testing.T) {
	ctx := context.Background()
	archive, err := reports.Open(ctx, kv.NewMemoryStore(), nil)
	require.NoError(t, err)
	defer archive.Close()

	failing := completerFunc(func(string) (string, error) { return "", errors.New("rate limited") })
	_, err = newAnalyzer(mapSearcher{}, failing, archive).Retraining(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, archive.Count(reports.KindTraining))

	var prompt string
	ok := completerFunc(func(p string) (string, error) { prompt = p; return "Program outline", nil })
	s := mapSearcher{DefaultCatalog().Retraining.Query: {hit("operator not trained on GDP", "sample_deviation_3.txt")}}
	prog, err := newAnalyzer(s, ok, archive).Retraining(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TRAIN-20240502-140309", prog.ProgramID)
	assert.Contains(t, prompt, "RELEVANT DEVIATION PATTERNS:")
	assert.Equal(t, 1, archive.Count(reports.KindTraining))
}

func TestLoadCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("critical:\n  top_k: 4\n  queries:\n    - sterility failure\n"), 0o644))
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sterility failure"}, c.Critical.Queries)
	assert.Equal(t, 4, c.Critical.TopK)
	assert.Len(t, c.Trends.Patterns, 6)

	require.NoError(t, os.WriteFile(path, []byte("critical:\n  queries: []\n"), 0o644))
	_, err = LoadCatalog(path)
	assert.Error(t, err)
}
