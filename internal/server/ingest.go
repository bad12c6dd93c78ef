package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/corpus"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

type IngestHandler struct {
	Ingester *corpus.Ingester
	Corpus   config.CorpusConfig
}

func (h *IngestHandler) Register(g *echo.Group) {
	g.POST("/process", h.processSOPs)
	g.POST("/process-deviations", h.processDeviations)
	g.POST("/upload-sop", h.upload)
	g.GET("/list-sops", h.list)
}

func (h *IngestHandler) processSOPs(c echo.Context) error {
	report, err := h.Ingester.IngestDir(c.Request().Context(), vectorstore.Reference, h.Corpus.SOPDir, corpus.DocumentExtensions)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("processing failed: %v", err))
	}
	msg := "SOPs processed successfully"
	if report.Documents == 0 {
		msg = "no SOP documents found"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "message": msg, "report": report})
}

func (h *IngestHandler) processDeviations(c echo.Context) error {
	if _, err := corpus.EnsureSamples(h.Corpus.SampleDir); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("deviation processing failed: %v", err))
	}
	report, err := h.Ingester.IngestDir(c.Request().Context(), vectorstore.IncidentSample, h.Corpus.SampleDir, []string{".txt"})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("deviation processing failed: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "message": "Deviation samples processed successfully", "report": report})
}

func (h *IngestHandler) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()
	name, err := corpus.SaveUpload(h.Corpus.SOPDir, fh.Filename, src)
	if errors.Is(err, corpus.ErrBadFilename) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("upload failed: %v", err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "message": fmt.Sprintf("SOP %s uploaded successfully", name)})
}

func (h *IngestHandler) list(c echo.Context) error {
	names, err := corpus.List(h.Corpus.SOPDir, corpus.DocumentExtensions)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list SOPs: %v", err))
	}
	return c.JSON(http.StatusOK, map[string][]string{"sops": names})
}
