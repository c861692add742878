package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/webbuilder/internal/builder"
	"github.com/mohammad-safakhou/webbuilder/internal/store"
)

type chatBuilder interface {
	Chat(ctx context.Context, req builder.ChatRequest) builder.ChatResponse
}

type historyStore interface {
	ListMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
	ListPagesBySession(ctx context.Context, sessionID string) ([]store.PageRecord, error)
}

// ChatHandler serves the conversational endpoints. Chat replies are always
// 200; failures are reported inside the reply text.
type ChatHandler struct {
	Builder chatBuilder
	History historyStore
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/message", h.message)
	g.GET("/history", h.history)
	g.GET("/pages", h.pages)
}

func (h *ChatHandler) message(c echo.Context) error {
	var req builder.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, builder.ChatResponse{
			Response:  builder.ErrorReplyPrefix + "invalid request body",
			SessionID: req.SessionID,
		})
	}
	return c.JSON(http.StatusOK, h.Builder.Chat(c.Request().Context(), req))
}

func (h *ChatHandler) history(c echo.Context) error {
	sessionID := strings.TrimSpace(c.QueryParam("session_id"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id required")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	msgs, err := h.History.ListMessages(c.Request().Context(), sessionID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"session_id": sessionID, "messages": msgs})
}

func (h *ChatHandler) pages(c echo.Context) error {
	sessionID := strings.TrimSpace(c.QueryParam("session_id"))
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id required")
	}
	items, err := h.History.ListPagesBySession(c.Request().Context(), sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
