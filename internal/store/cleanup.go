package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// MarkBusy records a path as mid-conversion so a concurrent cleanup sweep
// will not remove it. Done releases the marker.
func (s *Store) MarkBusy(path string) {
	s.mu.Lock()
	s.busy[path] = struct{}{}
	s.mu.Unlock()
}

func (s *Store) Done(path string) {
	s.mu.Lock()
	delete(s.busy, path)
	s.mu.Unlock()
}

func (s *Store) isBusy(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.busy[path]
	return ok
}

// Cleanup removes entries under every root whose modification time precedes
// the retention cutoff. It is safe to run repeatedly and concurrently with
// active conversions: busy paths are skipped, and a file already removed by
// another sweep is not an error.
func (s *Store) Cleanup(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var firstErr error

	for _, root := range s.Roots() {
		entries, err := os.ReadDir(root)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if s.isBusy(path) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				if !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
					firstErr = err
				}
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.log.Info("cleanup sweep",
			zap.Int("removed", removed),
			zap.Duration("retention", olderThan))
	}
	return removed, firstErr
}

// RunCleanup sweeps on a fixed interval until the context is cancelled.
func (s *Store) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(retention); err != nil {
				s.log.Warn("cleanup sweep error", zap.Error(err))
			}
		}
	}
}
