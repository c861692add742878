package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/webbuilder/internal/pages"
)

type pageStore interface {
	List(ctx context.Context, sessionID string) ([]pages.Metadata, error)
	Get(ctx context.Context, pageID string) (pages.Page, error)
	Search(ctx context.Context, q string, limit int) ([]pages.Metadata, error)
}

type PagesHandler struct {
	Pages pageStore
}

func (h *PagesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id", h.get)
}

func (h *PagesHandler) list(c echo.Context) error {
	items, err := h.Pages.List(c.Request().Context(), c.QueryParam("session_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *PagesHandler) get(c echo.Context) error {
	page, err := h.Pages.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, pages.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "page not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, page)
}

func (h *PagesHandler) search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits, err := h.Pages.Search(c.Request().Context(), q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}
