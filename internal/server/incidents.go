package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/deviation"
	"github.com/mohammad-safakhou/sopguard/internal/reports"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

type IncidentHandler struct {
	Classifier *deviation.Classifier
	Writer     *reports.Writer
	Searcher   search.Searcher
	Retrieval  config.RetrievalConfig
	Logger     *log.Logger
}

type incidentResponse struct {
	Incident      string             `json:"incident"`
	IsDeviation   bool               `json:"is_deviation"`
	Analysis      deviation.Record   `json:"deviation_analysis"`
	Parsed        bool               `json:"analysis_parsed"`
	FallbackCause string             `json:"fallback_cause,omitempty"`
	SOPReferences []string           `json:"sop_references"`
	Report        *reports.Generated `json:"report,omitempty"`
}

func (h *IncidentHandler) Register(g *echo.Group) {
	if h.Logger == nil {
		h.Logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	g.POST("/report-incident", h.report)
	g.POST("/deviation-prompt", h.prompt)
}

func (h *IncidentHandler) report(c echo.Context) error {
	var req struct {
		Incident       string `json:"incident" form:"incident"`
		GenerateReport *bool  `json:"generate_report" form:"generate_report"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Incident) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "incident required")
	}
	ctx := c.Request().Context()
	result := h.Classifier.Classify(ctx, req.Incident)
	resp := incidentResponse{
		Incident:      req.Incident,
		IsDeviation:   result.Record.IsDeviation,
		Analysis:      result.Record,
		Parsed:        result.Parsed,
		FallbackCause: result.Cause,
		SOPReferences: search.DistinctLabels(result.Contexts),
	}
	if result.Record.IsDeviation && wants(req.GenerateReport) {
		resp.Report = h.generate(ctx, req.Incident, result.Record, result.Contexts)
	}
	return c.JSON(http.StatusOK, resp)
}

// prompt builds a record from operator-supplied severity and category instead of
// asking the reasoning service to classify.
func (h *IncidentHandler) prompt(c echo.Context) error {
	var req struct {
		Description    string `json:"incident_description" form:"incident_description"`
		Severity       string `json:"severity" form:"severity"`
		Category       string `json:"category" form:"category"`
		GenerateReport *bool  `json:"generate_report" form:"generate_report"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Description) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "incident_description required")
	}
	if req.Severity == "" {
		req.Severity = string(deviation.Major)
	}
	if req.Category == "" {
		req.Category = string(deviation.Process)
	}
	sev, ok := deviation.ParseSeverity(req.Severity)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "severity must be one of critical, major, minor, observation")
	}
	cat, ok := deviation.ParseCategory(req.Category)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "category must be one of equipment, process, documentation, training, environmental, material")
	}

	ctx := c.Request().Context()
	contexts, err := h.Searcher.Search(ctx, vectorstore.Reference, req.Description, h.Retrieval.TopK, h.Retrieval.MinScore)
	if err != nil {
		h.Logger.Printf("warn: context retrieval for deviation prompt failed: %v", err)
		contexts = nil
	}
	record := deviation.Manual(sev, cat)
	resp := incidentResponse{
		Incident:      req.Description,
		IsDeviation:   true,
		Analysis:      record,
		Parsed:        true,
		SOPReferences: search.DistinctLabels(contexts),
	}
	if wants(req.GenerateReport) {
		resp.Report = h.generate(ctx, req.Description, record, contexts)
	}
	return c.JSON(http.StatusOK, resp)
}

// generate drafts the report; a failure leaves the classification response intact.
func (h *IncidentHandler) generate(ctx context.Context, incident string, rec deviation.Record, contexts []search.Result) *reports.Generated {
	if h.Writer == nil {
		return nil
	}
	gen, err := h.Writer.DeviationReport(ctx, incident, rec, contexts)
	if err != nil {
		h.Logger.Printf("warn: deviation report omitted from response: %v", err)
		return nil
	}
	return &gen
}

func wants(flag *bool) bool { return flag == nil || *flag }
