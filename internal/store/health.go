package store

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// CheckHealth verifies that the model directory is accessible and writable.
// Returns (ok, message) where message describes the problem when not ok.
// Writability is probed by creating and removing a throwaway file, which
// works the same across platforms.
func (s *Store) CheckHealth() (bool, string) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Sprintf("model directory does not exist: %s", s.dir)
		}
		if os.IsPermission(err) {
			return false, fmt.Sprintf("permission denied: %s", s.dir)
		}
		return false, fmt.Sprintf("cannot access model directory: %v", err)
	}
	if !info.IsDir() {
		return false, fmt.Sprintf("model path is not a directory: %s", s.dir)
	}

	probe := s.Path(fmt.Sprintf(".deskhand_health_%s", uuid.New().String()[:8]))

	file, err := os.Create(probe)
	if err != nil {
		if os.IsPermission(err) {
			return false, fmt.Sprintf("model directory is read-only: %s", s.dir)
		}
		return false, fmt.Sprintf("cannot write to model directory: %v", err)
	}

	if _, err := file.Write([]byte("health check")); err != nil {
		file.Close()
		os.Remove(probe)
		return false, fmt.Sprintf("cannot write data: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(probe)
		return false, fmt.Sprintf("cannot close probe file: %v", err)
	}
	if err := os.Remove(probe); err != nil {
		return false, fmt.Sprintf("cannot remove probe file: %v", err)
	}

	return true, ""
}
