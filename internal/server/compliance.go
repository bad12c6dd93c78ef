package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/compliance"
	"github.com/mohammad-safakhou/sopguard/internal/corpus"
	"github.com/mohammad-safakhou/sopguard/internal/reports"
)

type ComplianceHandler struct {
	Analyzer *compliance.Analyzer
	Archive  *reports.Archive
	Corpus   config.CorpusConfig
}

func (h *ComplianceHandler) Register(g *echo.Group) {
	g.GET("/real-time-alerts", h.alerts)
	g.GET("/flag-critical-deviations", h.flagCritical)
	g.GET("/compliance-trends", h.trends)
	g.GET("/compliance-dashboard", h.dashboard)
	g.GET("/deviation-trends", h.deviationTrends)
	g.GET("/retraining-suggestions", h.retraining)
}

func (h *ComplianceHandler) alerts(c echo.Context) error {
	alerts := h.Analyzer.Alerts(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "success",
		"alerts_count": len(alerts),
		"alerts":       alerts,
		"timestamp":    time.Now(),
	})
}

func (h *ComplianceHandler) flagCritical(c echo.Context) error {
	flagged := h.Analyzer.FlagCritical(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":              "success",
		"flagged_count":       len(flagged),
		"critical_deviations": flagged,
		"timestamp":           time.Now(),
	})
}

func (h *ComplianceHandler) trends(c echo.Context) error {
	trends := h.Analyzer.AnalyzeTrends(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":            "success",
		"trends_identified": len(trends),
		"compliance_trends": trends,
		"timestamp":         time.Now(),
	})
}

func (h *ComplianceHandler) dashboard(c echo.Context) error {
	d := h.Analyzer.Dashboard(c.Request().Context(), h.totalDeviations())
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "dashboard": d})
}

// totalDeviations counts stored incident reports plus sample documents on disk.
func (h *ComplianceHandler) totalDeviations() int {
	total := 0
	if h.Archive != nil {
		total += h.Archive.Count(reports.KindDeviation)
	}
	if samples, err := corpus.List(h.Corpus.SampleDir, []string{".txt"}); err == nil {
		total += len(samples)
	}
	return total
}

func (h *ComplianceHandler) deviationTrends(c echo.Context) error {
	out, err := h.Analyzer.DeviationTrends(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ComplianceHandler) retraining(c echo.Context) error {
	out, err := h.Analyzer.Retraining(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, out)
}
