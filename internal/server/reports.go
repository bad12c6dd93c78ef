package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/sopguard/internal/reports"
)

type ReportsHandler struct {
	Archive *reports.Archive
}

func (h *ReportsHandler) Register(g *echo.Group) {
	g.GET("/list-reports", h.list)
	g.GET("/reports/search", h.search)
	g.GET("/reports/:id", h.get)
}

func (h *ReportsHandler) list(c echo.Context) error {
	byKind := h.Archive.List()
	out := map[string][]reports.Summary{
		"deviation_reports": byKind[reports.KindDeviation],
		"training_reports":  byKind[reports.KindTraining],
		"trends_reports":    byKind[reports.KindTrends],
	}
	for k, v := range out {
		if v == nil {
			out[k] = []reports.Summary{}
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ReportsHandler) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k := 10
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = n
	}
	hits, err := h.Archive.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if hits == nil {
		hits = []reports.Hit{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "hits": hits})
}

func (h *ReportsHandler) get(c echo.Context) error {
	doc, err := h.Archive.Get(c.Request().Context(), c.Param("id"))
	if reports.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}
