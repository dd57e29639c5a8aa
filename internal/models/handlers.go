package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deskhand/deskhand/internal/download"
)

// Handlers provides the HTTP surface for model lifecycle operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new models handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the model lifecycle routes. These live at
// the root so the UI can call /health and /models directly.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/models", h.ListModels)
	e.POST("/models/download", h.DownloadModel)
	e.DELETE("/models/:filename", h.DeleteModel)
}

// Health reports inference readiness.
// GET /health
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Health(c.Request().Context()))
}

// ListModels returns the catalog plus everything on disk.
// GET /models
func (h *Handlers) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Overview())
}

type downloadRequest struct {
	ModelURL string `json:"modelUrl"`
	Filename string `json:"filename"`
}

type progressEvent struct {
	Progress int `json:"progress"`
}

type completeEvent struct {
	Complete  bool   `json:"complete"`
	ModelPath string `json:"modelPath"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// DownloadModel streams a catalog model download as server-sent
// events: zero or more {"progress": n} lines followed by exactly one
// terminal {"complete": true, "modelPath": p} or {"error": m} line.
// POST /models/download
func (h *Handlers) DownloadModel(c echo.Context) error {
	var req downloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
	}

	// Catalog membership and conflicts are checked before committing
	// to a streaming response, so these failures stay ordinary HTTP
	// errors.
	if _, err := h.service.Resolve(req.Filename, req.ModelURL); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "model not found in catalog")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.service.DownloadInProgress(req.Filename) {
		return echo.NewHTTPError(http.StatusConflict, "download already in progress")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	lastPercent := -1
	path, err := h.service.StartDownload(c.Request().Context(), req.Filename, func(percent int) {
		if percent == lastPercent {
			return
		}
		lastPercent = percent
		writeEvent(c, progressEvent{Progress: percent})
	})
	if err != nil {
		// A dead client cannot receive a terminal event.
		if c.Request().Context().Err() != nil {
			return nil
		}
		if errors.Is(err, download.ErrConflict) {
			writeEvent(c, errorEvent{Error: "download already in progress"})
			return nil
		}
		writeEvent(c, errorEvent{Error: err.Error()})
		return nil
	}

	writeEvent(c, completeEvent{Complete: true, ModelPath: path})
	return nil
}

// DeleteModel removes a downloaded model file.
// DELETE /models/:filename
func (h *Handlers) DeleteModel(c echo.Context) error {
	filename := c.Param("filename")

	err := h.service.Delete(c.Request().Context(), filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "model not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Deleted %s", filename),
	})
}

func writeEvent(c echo.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return
	}
	c.Response().Flush()
}
