package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for chat operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new chat handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers chat routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Ask)
}

type askRequest struct {
	Message  string    `json:"message"`
	History  []Message `json:"history"`
	Language string    `json:"language"`
}

// Ask answers a support question.
// POST /chat
func (h *Handlers) Ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reply, err := h.service.Ask(c.Request().Context(), Question{
		Message:  req.Message,
		History:  req.History,
		Language: req.Language,
	})
	if err != nil {
		if errors.Is(err, ErrNoBackend) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "no model loaded and no hosted API configured")
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, reply)
}
