// Package store manages the on-disk model directory. The directory is the
// only persisted state: there is no manifest, and listings always reflect
// what is on disk right now.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Extension is the only file type recognized as a model artifact.
const Extension = ".gguf"

// stagingSuffix marks files still being written by an active download.
// Staged files never match Extension, so they never show up in listings.
const stagingSuffix = ".partial"

// Artifact is one complete model file present in the directory.
type Artifact struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Store owns the model directory. Only the downloader writes into it, and
// only through the staging paths this package hands out.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// New creates a store rooted at dir. The directory is not created until
// EnsureDir is called.
func New(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Dir returns the model directory path.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDir creates the model directory if it does not exist. Idempotent.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	return nil
}

// List enumerates the complete artifacts in the directory, stat'ing sizes at
// call time. An unreadable directory is logged and reported as empty rather
// than as an error: having no models is a normal state, and callers such as
// the models endpoint must keep answering.
func (s *Store) List() []Artifact {
	artifacts := make([]Artifact, 0)

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn().Err(err).Str("dir", s.dir).Msg("model directory not readable, listing as empty")
		return artifacts
	}

	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to stat model file, skipping")
			continue
		}
		artifacts = append(artifacts, Artifact{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Filename < artifacts[j].Filename
	})

	return artifacts
}

// Path joins the directory and filename. It does not check existence.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// Exists reports whether a complete artifact with the given name is present.
func (s *Store) Exists(filename string) bool {
	if !validName(filename) {
		return false
	}
	info, err := os.Stat(s.Path(filename))
	return err == nil && !info.IsDir()
}

// Delete removes an artifact. It returns (false, nil) when the file did not
// exist, which is not an error, and (false, err) only when removal was
// attempted but blocked.
func (s *Store) Delete(filename string) (bool, error) {
	if !validName(filename) {
		return false, nil
	}

	err := os.Remove(s.Path(filename))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to remove model file: %w", err)
	}

	s.logger.Info().Str("filename", filename).Msg("model file deleted")
	return true, nil
}

// SizeLabel returns a human-readable size for an artifact, or "Unknown" when
// the file cannot be stat'ed. It never fails.
func (s *Store) SizeLabel(filename string) string {
	if !validName(filename) {
		return "Unknown"
	}
	info, err := os.Stat(s.Path(filename))
	if err != nil {
		return "Unknown"
	}
	return FormatSize(info.Size())
}

// StagingPath returns the in-progress name for a download target. Staged
// files live next to their final name so the promote rename never crosses a
// filesystem boundary.
func (s *Store) StagingPath(filename string) string {
	return filepath.Join(s.dir, filename+stagingSuffix)
}

// Promote atomically renames a staged file into its final name. Listings
// only ever see the artifact after this succeeds.
func (s *Store) Promote(filename string) error {
	if err := os.Rename(s.StagingPath(filename), s.Path(filename)); err != nil {
		return fmt.Errorf("failed to promote staged file: %w", err)
	}
	return nil
}

// DiscardStaging removes a staged file, best-effort. A failed removal is
// logged but never escalated; the sweep task picks up what this misses.
func (s *Store) DiscardStaging(filename string) {
	err := os.Remove(s.StagingPath(filename))
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("failed to remove staged file")
	}
}

// SweepStaging removes staged files older than the cutoff. These are
// leftovers from crashed or killed processes; live downloads keep their
// staging files fresh. Returns the number of files removed.
func (s *Store) SweepStaging(olderThan time.Duration) (int, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read model directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stagingSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to remove stale staged file")
			continue
		}
		s.logger.Info().Str("file", entry.Name()).Time("modified", info.ModTime()).Msg("removed stale staged file")
		removed++
	}

	return removed, nil
}

// FormatSize renders a byte count the way the UI displays model sizes,
// e.g. "670.0MB".
func FormatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%dB", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1fGB", float64(bytes)/(1024*1024*1024))
	}
}

// validName rejects names that would resolve outside the model directory.
// Invalid names behave like absent files rather than errors.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return true
}
