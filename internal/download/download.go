// Package download fetches model artifacts over HTTP, streaming them
// into the artifact store with integer-percent progress reporting.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhand/deskhand/internal/catalog"
	"github.com/deskhand/deskhand/internal/store"
)

// ErrConflict is returned when a download for the same filename is
// already in flight.
var ErrConflict = errors.New("download already in progress")

// StatusError reports a non-success HTTP status from the remote host.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote returned status %d", e.Code)
}

// Manager coordinates model downloads. At most one download per
// filename runs at a time; concurrent requests for the same file get
// ErrConflict rather than queueing.
type Manager struct {
	store  *store.Store
	client *http.Client
	logger zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a download manager backed by the given store. A nil
// client falls back to a default http.Client without a timeout, since
// model files can take minutes to transfer.
func New(st *store.Store, client *http.Client, logger zerolog.Logger) *Manager {
	if client == nil {
		client = &http.Client{}
	}
	return &Manager{
		store:  st,
		client: client,
		logger: logger.With().Str("component", "download").Logger(),
		active: make(map[string]struct{}),
	}
}

// Download fetches the artifact described by entry into the store and
// returns the final path. If the file already exists the download is
// skipped entirely and no network request is made.
//
// onProgress, when non-nil, is invoked after each received chunk with
// the cumulative transfer percentage. It is never called when the
// remote does not announce a content length.
//
// The artifact is streamed to a staging file and only renamed into
// place once fully received, so a failed or cancelled download never
// leaves a partial model behind.
func (m *Manager) Download(ctx context.Context, entry catalog.Entry, onProgress func(percent int)) (string, error) {
	if err := catalog.ValidateFilename(entry.Filename); err != nil {
		return "", err
	}
	if m.store.Exists(entry.Filename) {
		m.logger.Debug().Str("filename", entry.Filename).Msg("model already downloaded, skipping")
		return m.store.Path(entry.Filename), nil
	}

	if !m.acquire(entry.Filename) {
		return "", ErrConflict
	}
	defer m.release(entry.Filename)

	// A competing download may have finished between the existence
	// check and the lock.
	if m.store.Exists(entry.Filename) {
		return m.store.Path(entry.Filename), nil
	}

	if err := m.store.EnsureDir(); err != nil {
		return "", err
	}

	m.logger.Info().
		Str("filename", entry.Filename).
		Str("url", entry.URL).
		Msg("starting model download")

	start := time.Now()
	received, err := m.fetch(ctx, entry, onProgress)
	if err != nil {
		return "", err
	}

	if err := m.store.Promote(entry.Filename); err != nil {
		m.store.DiscardStaging(entry.Filename)
		return "", fmt.Errorf("finalizing %s: %w", entry.Filename, err)
	}

	m.logger.Info().
		Str("filename", entry.Filename).
		Int64("bytes", received).
		Dur("duration", time.Since(start)).
		Msg("model download complete")

	return m.store.Path(entry.Filename), nil
}

func (m *Manager) fetch(ctx context.Context, entry catalog.Entry, onProgress func(percent int)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", entry.Filename, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("downloading %s: %w", entry.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{Code: resp.StatusCode}
	}

	total := resp.ContentLength

	out, err := os.Create(m.store.StagingPath(entry.Filename))
	if err != nil {
		return 0, fmt.Errorf("creating staging file for %s: %w", entry.Filename, err)
	}

	buf := make([]byte, 32*1024)
	var received int64
	for {
		select {
		case <-ctx.Done():
			out.Close()
			m.store.DiscardStaging(entry.Filename)
			return 0, ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				m.store.DiscardStaging(entry.Filename)
				return 0, fmt.Errorf("writing %s: %w", entry.Filename, writeErr)
			}
			received += int64(n)
			if total > 0 && onProgress != nil {
				onProgress(int(math.Round(float64(received) / float64(total) * 100)))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			m.store.DiscardStaging(entry.Filename)
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, fmt.Errorf("reading %s: %w", entry.Filename, readErr)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		m.store.DiscardStaging(entry.Filename)
		return 0, fmt.Errorf("syncing staging file for %s: %w", entry.Filename, err)
	}
	if err := out.Close(); err != nil {
		m.store.DiscardStaging(entry.Filename)
		return 0, fmt.Errorf("closing staging file for %s: %w", entry.Filename, err)
	}
	return received, nil
}

// Active reports whether a download for filename is currently in
// flight.
func (m *Manager) Active(filename string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.active[filename]
	return busy
}

func (m *Manager) acquire(filename string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[filename]; busy {
		return false
	}
	m.active[filename] = struct{}{}
	return true
}

func (m *Manager) release(filename string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, filename)
}
