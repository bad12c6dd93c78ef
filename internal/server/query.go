package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/sopqa"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

type QueryHandler struct {
	QA        *sopqa.Service
	Searcher  search.Searcher
	Retrieval config.RetrievalConfig
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("/query", h.query)
	g.POST("/search", h.search)
}

func (h *QueryHandler) query(c echo.Context) error {
	var req struct {
		Query string `json:"query" form:"query"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	ans, err := h.QA.Ask(c.Request().Context(), req.Query)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ans)
}

// search exposes raw retrieval over either namespace.
func (h *QueryHandler) search(c echo.Context) error {
	var req struct {
		Namespace string   `json:"namespace" form:"namespace"`
		Query     string   `json:"query" form:"query"`
		TopK      int      `json:"top_k" form:"top_k"`
		MinScore  *float64 `json:"min_score" form:"min_score"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ns := vectorstore.Reference
	if req.Namespace != "" {
		parsed, err := vectorstore.ParseNamespace(req.Namespace)
		if err != nil {
			return httpError(err)
		}
		ns = parsed
	}
	if req.TopK <= 0 {
		req.TopK = h.Retrieval.TopK
	}
	minScore := h.Retrieval.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	results, err := h.Searcher.Search(c.Request().Context(), ns, req.Query, req.TopK, minScore)
	if err != nil {
		return httpError(err)
	}
	if results == nil {
		results = []search.Result{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"namespace": ns, "results": results})
}
