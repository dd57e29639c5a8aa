// Package models is the model lifecycle facade: it aggregates the
// catalog, the artifact store, and the downloader behind the HTTP
// surface used by the assistant UI.
package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/activity"
	"github.com/deskhand/deskhand/internal/catalog"
	"github.com/deskhand/deskhand/internal/download"
	"github.com/deskhand/deskhand/internal/history"
	"github.com/deskhand/deskhand/internal/inference"
	"github.com/deskhand/deskhand/internal/store"
	"github.com/deskhand/deskhand/internal/websocket"
)

// ErrNotFound indicates an unknown filename in the catalog or store.
var ErrNotFound = errors.New("model not found")

// activityInterval throttles websocket progress broadcasts; SSE
// consumers still receive every distinct percentage.
const activityInterval = 100 * time.Millisecond

// DownloadedModel is a stored artifact as reported to clients.
type DownloadedModel struct {
	Filename string `json:"filename"`
	Size     string `json:"size"`
}

// Overview is the combined catalog and on-disk model listing.
type Overview struct {
	Recommended []catalog.Entry   `json:"recommended"`
	Downloaded  []DownloadedModel `json:"downloaded"`
}

// Health reports whether the inference server has a model loaded.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"modelLoaded"`
	ModelPath   string `json:"modelPath"`
}

// Service wires model lifecycle operations together.
type Service struct {
	catalog   *catalog.Catalog
	store     *store.Store
	downloads *download.Manager
	history   *history.Service
	activity  *activity.Manager
	inference *inference.Client
	hub       *websocket.Hub
	logger    zerolog.Logger
}

// NewService creates the model lifecycle service. The hub may be nil,
// which disables websocket notifications.
func NewService(
	cat *catalog.Catalog,
	st *store.Store,
	downloads *download.Manager,
	hist *history.Service,
	act *activity.Manager,
	inf *inference.Client,
	hub *websocket.Hub,
	logger zerolog.Logger,
) *Service {
	return &Service{
		catalog:   cat,
		store:     st,
		downloads: downloads,
		history:   hist,
		activity:  act,
		inference: inf,
		hub:       hub,
		logger:    logger.With().Str("component", "models").Logger(),
	}
}

// Overview aggregates the catalog with what is on disk. It never
// fails: an unreadable model directory reads as an empty download
// list.
func (s *Service) Overview() Overview {
	artifacts := s.store.List()
	downloaded := make([]DownloadedModel, 0, len(artifacts))
	for _, a := range artifacts {
		downloaded = append(downloaded, DownloadedModel{
			Filename: a.Filename,
			Size:     store.FormatSize(a.SizeBytes),
		})
	}
	return Overview{
		Recommended: s.catalog.List(),
		Downloaded:  downloaded,
	}
}

// Health delegates readiness entirely to the inference server probe.
func (s *Service) Health(ctx context.Context) Health {
	st := s.inference.Status(ctx)
	return Health{
		Status:      "ok",
		ModelLoaded: st.Ready,
		ModelPath:   st.ModelPath,
	}
}

// Resolve looks up filename in the catalog. The catalog URL is
// authoritative; a mismatching requested URL is logged and ignored.
func (s *Service) Resolve(filename, requestedURL string) (catalog.Entry, error) {
	entry, ok := s.catalog.Lookup(filename)
	if !ok {
		return catalog.Entry{}, ErrNotFound
	}
	if requestedURL != "" && requestedURL != entry.URL {
		s.logger.Warn().
			Str("filename", filename).
			Str("requestedUrl", requestedURL).
			Str("catalogUrl", entry.URL).
			Msg("ignoring requested download URL, catalog is authoritative")
	}
	return entry, nil
}

// DownloadInProgress reports whether filename is currently being
// fetched.
func (s *Service) DownloadInProgress(filename string) bool {
	return s.downloads.Active(filename)
}

// StartDownload fetches a catalog model into the store, forwarding
// progress percentages to onProgress and recording the outcome in
// history. An artifact already on disk returns its path immediately
// with no bookkeeping.
func (s *Service) StartDownload(ctx context.Context, filename string, onProgress func(percent int)) (string, error) {
	entry, ok := s.catalog.Lookup(filename)
	if !ok {
		return "", ErrNotFound
	}

	if s.store.Exists(entry.Filename) {
		return s.store.Path(entry.Filename), nil
	}

	id := uuid.NewString()
	s.activity.Start(id, activity.TypeDownload, entry.Name)
	s.activity.SetMetadata(id, "filename", entry.Filename)
	s.activity.SetMetadata(id, "url", entry.URL)

	if err := s.history.LogDownloadStarted(ctx, entry.Filename, entry.URL); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record download start")
	}

	var lastBroadcast time.Time
	progress := func(percent int) {
		if onProgress != nil {
			onProgress(percent)
		}
		if time.Since(lastBroadcast) >= activityInterval || percent >= 100 {
			lastBroadcast = time.Now()
			s.activity.Update(id, fmt.Sprintf("Downloading... %d%%", percent), percent)
		}
	}

	path, err := s.downloads.Download(ctx, entry, progress)
	if err != nil {
		// The request context is likely dead here; history writes get
		// a fresh one.
		bg := context.Background()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.activity.Cancel(id)
			s.logger.Info().Str("filename", entry.Filename).Msg("download cancelled by client")
			if herr := s.history.LogDownloadFailed(bg, entry.Filename, entry.URL, errors.New("cancelled by client")); herr != nil {
				s.logger.Warn().Err(herr).Msg("failed to record download cancellation")
			}
			return "", err
		}

		s.activity.Fail(id, err.Error())
		if herr := s.history.LogDownloadFailed(bg, entry.Filename, entry.URL, err); herr != nil {
			s.logger.Warn().Err(herr).Msg("failed to record download failure")
		}
		return "", err
	}

	var sizeBytes int64
	if info, statErr := os.Stat(path); statErr == nil {
		sizeBytes = info.Size()
	}

	s.activity.Complete(id, "Download complete")
	if err := s.history.LogDownloadCompleted(ctx, entry.Filename, entry.URL, sizeBytes); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record download completion")
	}

	return path, nil
}

// Delete removes a downloaded model. ErrNotFound is returned when the
// file is not present; blocked filesystem deletes surface as errors.
func (s *Service) Delete(ctx context.Context, filename string) error {
	removed, err := s.store.Delete(filename)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", filename, err)
	}
	if !removed {
		return ErrNotFound
	}

	if err := s.history.LogModelDeleted(ctx, filename); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record model deletion")
	}
	if s.hub != nil {
		s.hub.Broadcast("model:deleted", map[string]string{"filename": filename})
	}

	s.logger.Info().Str("filename", filename).Msg("model deleted")
	return nil
}
