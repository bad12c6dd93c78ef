package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/corpus"
)

type HealthHandler struct {
	App    *App
	Corpus config.CorpusConfig
}

func (h *HealthHandler) Register(g *echo.Group) {
	g.GET("/health", h.health)
}

func (h *HealthHandler) health(c echo.Context) error {
	storage := "connected"
	if h.App.KV == nil || h.App.KV.Ping(c.Request().Context()) != nil {
		storage = "disconnected"
	}
	backend := "memory"
	if h.App.Config != nil {
		backend = h.App.Config.Storage.Backend
	}
	sops, _ := corpus.List(h.Corpus.SOPDir, corpus.DocumentExtensions)
	samples, _ := corpus.List(h.Corpus.SampleDir, []string{".txt"})
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":                      "healthy",
		"storage":                     storage,
		"backend":                     backend,
		"sop_files_available":         len(sops),
		"deviation_samples_available": len(samples),
		"timestamp":                   time.Now(),
	})
}
