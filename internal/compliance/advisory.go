package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
	"github.com/mohammad-safakhou/sopguard/internal/reports"
)

// Archive is the slice of the report archive the advisory procedures use.
type Archive interface {
	Recent(kind reports.Kind, n int) []reports.Document
	Save(ctx context.Context, doc reports.Document) (reports.Document, error)
}

type Recommendations struct {
	ImmediateActions       []string `json:"immediate_actions"`
	PreventiveMeasures     []string `json:"preventive_measures"`
	TrainingPriorities     []string `json:"training_priorities"`
	SystemImprovements     []string `json:"system_improvements"`
	MonitoringEnhancements []string `json:"monitoring_enhancements"`
}

// DefaultRecommendations is used when the reply carries no JSON object.
func DefaultRecommendations() Recommendations {
	return Recommendations{
		ImmediateActions: []string{
			"Review all critical deviations with Quality Assurance",
			"Quarantine affected batches mentioned in deviations",
			"Conduct immediate equipment calibration checks",
		},
		PreventiveMeasures: []string{
			"Strengthen training programs on GDP and GMP",
			"Implement automated environmental monitoring",
			"Enhance documentation review processes",
		},
		TrainingPriorities: []string{
			"Good Documentation Practices for all operators",
			"Equipment operation and maintenance training",
			"Deviation reporting and investigation procedures",
		},
		SystemImprovements: []string{
			"Upgrade to electronic batch records system",
			"Implement real-time monitoring alerts",
			"Enhance change control procedures",
		},
		MonitoringEnhancements: []string{
			"Increase environmental monitoring frequency",
			"Implement trend analysis dashboard",
			"Enhance audit trail review processes",
		},
	}
}

// MinimalRecommendations is used when the call fails or the JSON is malformed.
func MinimalRecommendations() Recommendations {
	return Recommendations{
		ImmediateActions:       []string{"Review critical deviations immediately"},
		PreventiveMeasures:     []string{"Implement enhanced monitoring"},
		TrainingPriorities:     []string{"Conduct GMP refresher training"},
		SystemImprovements:     []string{"Review and update procedures"},
		MonitoringEnhancements: []string{"Increase audit frequency"},
	}
}

// Recommend asks for GMP recommendations given the flagged entries and trends.
func (a *Analyzer) Recommend(ctx context.Context, flagged []FlaggedDeviation, trends []TrendEntry) Recommendations {
	levels := make([]string, len(flagged))
	for i, f := range flagged {
		levels[i] = f.Analysis.RiskLevel
	}
	types := make([]string, len(trends))
	for i, t := range trends {
		types[i] = t.Analysis.TrendType
	}
	prompt := fmt.Sprintf(`Based on this pharmaceutical compliance analysis:

CRITICAL DEVIATIONS: %d flagged issues with risk levels: [%s]
COMPLIANCE TRENDS: %d identified trends: [%s]

Generate actionable pharmaceutical GMP recommendations in JSON format:
{
    "immediate_actions": ["list of 3-5 urgent actions for quality team"],
    "preventive_measures": ["list of 3-5 preventive measures"],
    "training_priorities": ["list of 3-5 training needs with departments"],
    "system_improvements": ["list of 3-5 system enhancements"],
    "monitoring_enhancements": ["list of 3-5 monitoring improvements"]
}

Focus on FDA 21 CFR Part 211 and EU GMP compliance.
`, len(flagged), strings.Join(levels, ", "), len(trends), strings.Join(types, ", "))

	var rec Recommendations
	_, err := reasoning.CompleteJSON(ctx, a.llm, prompt, &rec)
	switch {
	case errors.Is(err, reasoning.ErrNoObject):
		a.logger.Printf("warn: recommendations reply had no JSON object")
		return DefaultRecommendations()
	case err != nil:
		a.logger.Printf("warn: recommendations failed: %v", err)
		return MinimalRecommendations()
	}
	def := DefaultRecommendations()
	rec.ImmediateActions = orDefault(rec.ImmediateActions, def.ImmediateActions)
	rec.PreventiveMeasures = orDefault(rec.PreventiveMeasures, def.PreventiveMeasures)
	rec.TrainingPriorities = orDefault(rec.TrainingPriorities, def.TrainingPriorities)
	rec.SystemImprovements = orDefault(rec.SystemImprovements, def.SystemImprovements)
	rec.MonitoringEnhancements = orDefault(rec.MonitoringEnhancements, def.MonitoringEnhancements)
	return rec
}

func orDefault(v, def []string) []string {
	if v == nil {
		return def
	}
	return v
}

type TrendsReport struct {
	AnalysisID              string `json:"analysis_id"`
	TrendsAnalysis          string `json:"trends_analysis"`
	TrainingRecommendations string `json:"training_recommendations"`
	ReportsAnalyzed         int    `json:"reports_analyzed"`
	HistoricalPatternsUsed  int    `json:"historical_patterns_used"`
}

// DeviationTrends reviews the most recent stored incident reports alongside
// historical samples and drafts a narrative analysis plus training advice.
func (a *Analyzer) DeviationTrends(ctx context.Context) (TrendsReport, error) {
	cfg := a.catalog.TrendReport
	var recent []string
	if a.archive != nil {
		for _, d := range a.archive.Recent(reports.KindDeviation, cfg.RecentReports) {
			text := d.Body
			if r := []rune(text); cfg.ExcerptChars > 0 && len(r) > cfg.ExcerptChars {
				text = string(r[:cfg.ExcerptChars])
			}
			recent = append(recent, text)
		}
	}
	historical := a.retrieve(ctx, cfg.Query, cfg.TopK)

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze pharmaceutical deviation trends based on:\n\nRECENT DEVIATIONS (%d reports):\n", len(recent))
	for i, r := range recent {
		fmt.Fprintf(&b, "--- report %d ---\n%s\n", i+1, r)
	}
	fmt.Fprintf(&b, "\nHISTORICAL PATTERNS:\n%s", formatContexts(historical))
	b.WriteString(`
Provide comprehensive trend analysis covering:
1. Most common deviation categories
2. Recurring root causes
3. Training gaps identified
4. Equipment/systemic issues
5. Recommended preventive actions

Focus on actionable insights for quality improvement.
`)
	analysis, err := a.llm.Complete(ctx, b.String())
	if err != nil {
		return TrendsReport{}, fmt.Errorf("trend analysis: %w", err)
	}
	training, err := a.llm.Complete(ctx, fmt.Sprintf(`Based on these deviation trends, generate specific retraining recommendations:

%s

Provide structured training program suggestions including:
- Target audiences
- Training topics
- Urgency levels
- Expected outcomes
`, analysis))
	if err != nil {
		return TrendsReport{}, fmt.Errorf("training recommendations: %w", err)
	}

	now := a.now()
	out := TrendsReport{
		AnalysisID:              reports.NewID("TRENDS", now),
		TrendsAnalysis:          analysis,
		TrainingRecommendations: training,
		ReportsAnalyzed:         len(recent),
		HistoricalPatternsUsed:  len(historical),
	}
	out.AnalysisID = a.archiveText(ctx, reports.Document{
		ID:        out.AnalysisID,
		Kind:      reports.KindTrends,
		Title:     "Deviation trend analysis",
		Body:      analysis + "\n\nTRAINING RECOMMENDATIONS\n\n" + training,
		CreatedAt: now.UTC(),
	})
	return out, nil
}

type RetrainingProgram struct {
	ProgramID   string `json:"program_id"`
	Suggestions string `json:"suggestions"`
}

// Retraining drafts a retraining program informed by training-related incidents.
func (a *Analyzer) Retraining(ctx context.Context) (RetrainingProgram, error) {
	cfg := a.catalog.Retraining
	prompt := `Based on pharmaceutical GMP compliance requirements and common training-related deviations,
generate comprehensive retraining program suggestions covering:

- Equipment operation and maintenance
- Documentation practices and GDP
- Quality control procedures
- Regulatory compliance awareness
- Good Manufacturing Practices
- Specific technical skills based on deviation patterns

Provide detailed training program outlines with:
- Program objectives
- Target audiences by department
- Duration and delivery methods
- Assessment criteria
- Expected competency outcomes
`
	if hits := a.retrieve(ctx, cfg.Query, cfg.TopK); len(hits) > 0 {
		prompt += "\nRELEVANT DEVIATION PATTERNS:\n" + formatContexts(hits)
	}
	suggestions, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return RetrainingProgram{}, fmt.Errorf("retraining suggestions: %w", err)
	}
	now := a.now()
	id := a.archiveText(ctx, reports.Document{
		ID:        reports.NewID("TRAIN", now),
		Kind:      reports.KindTraining,
		Title:     "Retraining program suggestions",
		Body:      suggestions,
		CreatedAt: now.UTC(),
	})
	return RetrainingProgram{ProgramID: id, Suggestions: suggestions}, nil
}

// archiveText stores doc when an archive is configured and returns the id it was stored under.
func (a *Analyzer) archiveText(ctx context.Context, doc reports.Document) string {
	if a.archive == nil {
		return doc.ID
	}
	saved, err := a.archive.Save(ctx, doc)
	if err != nil {
		a.logger.Printf("warn: archive %s: %v", doc.ID, err)
		return doc.ID
	}
	return saved.ID
}

var _ Archive = (*reports.Archive)(nil)
