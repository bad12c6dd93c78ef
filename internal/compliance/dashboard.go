package compliance

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mohammad-safakhou/sopguard/internal/reports"
)

// SeverityDistribution splits the analysed incidents by flagged risk level.
type SeverityDistribution struct {
	CriticalCount      int     `json:"critical_count"`
	MajorCount         int     `json:"major_count"`
	MinorCount         int     `json:"minor_count"`
	CriticalPercentage float64 `json:"critical_percentage"`
	ComplianceScore    int     `json:"compliance_score"`
}

type Metrics struct {
	TotalDeviationsAnalyzed       int                  `json:"total_deviations_analyzed"`
	CriticalDeviationsFlagged     int                  `json:"critical_deviations_flagged"`
	NonComplianceTrendsIdentified int                  `json:"non_compliance_trends_identified"`
	SeverityDistribution          SeverityDistribution `json:"severity_distribution"`
	OverallComplianceScore        int                  `json:"overall_compliance_score"`
}

type Dashboard struct {
	DashboardID        string             `json:"dashboard_id"`
	Timestamp          time.Time          `json:"timestamp"`
	Metrics            Metrics            `json:"metrics"`
	CriticalDeviations []FlaggedDeviation `json:"critical_deviations"`
	ComplianceTrends   []TrendEntry       `json:"compliance_trends"`
	Recommendations    Recommendations    `json:"recommendations"`
}

// ComplianceScore is clamp(100 - (10*critical + 5*major + 2*minor), 0, 100) where
// minor = max(0, total - critical - major).
func ComplianceScore(critical, major, total int) int {
	minor := max(0, total-critical-major)
	return min(100, max(0, 100-(10*critical+5*major+2*minor)))
}

// Distribute counts flagged entries by risk level against total stored incidents.
func Distribute(flagged []FlaggedDeviation, total int) SeverityDistribution {
	var d SeverityDistribution
	for _, f := range flagged {
		switch f.Analysis.RiskLevel {
		case "critical":
			d.CriticalCount++
		case "major":
			d.MajorCount++
		}
	}
	d.MinorCount = max(0, total-d.CriticalCount-d.MajorCount)
	if total > 0 {
		d.CriticalPercentage = math.Round(float64(d.CriticalCount)/float64(total)*1000) / 10
	}
	d.ComplianceScore = ComplianceScore(d.CriticalCount, d.MajorCount, total)
	return d
}

// Dashboard runs both aggregation procedures and scores the result. totalDeviations
// is the number of stored incident records.
func (a *Analyzer) Dashboard(ctx context.Context, totalDeviations int) Dashboard {
	var (
		wg      sync.WaitGroup
		flagged []FlaggedDeviation
		trends  []TrendEntry
	)
	wg.Add(2)
	go func() { defer wg.Done(); flagged = a.FlagCritical(ctx) }()
	go func() { defer wg.Done(); trends = a.AnalyzeTrends(ctx) }()
	wg.Wait()

	dist := Distribute(flagged, totalDeviations)
	now := a.now()
	return Dashboard{
		DashboardID: reports.NewID("DASH", now),
		Timestamp:   now,
		Metrics: Metrics{
			TotalDeviationsAnalyzed:       totalDeviations,
			CriticalDeviationsFlagged:     len(flagged),
			NonComplianceTrendsIdentified: len(trends),
			SeverityDistribution:          dist,
			OverallComplianceScore:        dist.ComplianceScore,
		},
		CriticalDeviations: flagged,
		ComplianceTrends:   trends,
		Recommendations:    a.Recommend(ctx, flagged, trends),
	}
}

type Alert struct {
	AlertID          string    `json:"alert_id"`
	Type             string    `json:"type"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Severity         string    `json:"severity"`
	ImmediateActions []string  `json:"immediate_actions"`
	Timestamp        time.Time `json:"timestamp"`
}

// Alerts turns the first flagged entries into alert records.
func (a *Analyzer) Alerts(ctx context.Context) []Alert {
	flagged := a.FlagCritical(ctx)
	if limit := a.catalog.Alerts.Limit; len(flagged) > limit {
		flagged = flagged[:limit]
	}
	now := a.now()
	alerts := make([]Alert, len(flagged))
	for i, f := range flagged {
		alerts[i] = Alert{
			AlertID:          fmt.Sprintf("ALERT-%s-%d", now.Format("150405"), i),
			Type:             "critical_deviation",
			Title:            "Critical Deviation Flagged",
			Description:      f.Content,
			Severity:         f.Analysis.RiskLevel,
			ImmediateActions: f.Analysis.RecommendedActions,
			Timestamp:        now,
		}
	}
	return alerts
}
