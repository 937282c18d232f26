package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const archiveTimeLayout = "20060102T150405Z"

// CompletionArchive keeps raw completion text on disk, one file per
// request, so a failed or suspicious normalization can be replayed offline.
type CompletionArchive struct {
	basePath string
}

// NewCompletionArchive creates the archive and ensures the base directory exists.
func NewCompletionArchive(basePath string) (*CompletionArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &CompletionArchive{basePath: basePath}, nil
}

func (s *CompletionArchive) path(requestID string, createdAt time.Time) string {
	filename := fmt.Sprintf("%s_%s.txt", requestID, createdAt.UTC().Format(archiveTimeLayout))
	return filepath.Join(s.basePath, filename)
}

func (s *CompletionArchive) matches(requestID string) ([]string, error) {
	if requestID == "" || strings.ContainsAny(requestID, `/\*?[`) {
		return nil, fmt.Errorf("invalid request id %q", requestID)
	}
	pattern := filepath.Join(s.basePath, fmt.Sprintf("%s_*.txt", requestID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob archive files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Save writes the raw completion of a request.
func (s *CompletionArchive) Save(requestID string, createdAt time.Time, raw string) error {
	if _, err := s.matches(requestID); err != nil {
		return err
	}
	if err := os.WriteFile(s.path(requestID, createdAt), []byte(raw), 0644); err != nil {
		return fmt.Errorf("failed to write completion file: %w", err)
	}
	return nil
}

// Load returns the latest raw completion saved for a request.
func (s *CompletionArchive) Load(requestID string) (string, error) {
	matches, err := s.matches(requestID)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no completion archived for request %s: %w", requestID, os.ErrNotExist)
	}
	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return "", fmt.Errorf("failed to read completion file: %w", err)
	}
	return string(data), nil
}

// Exists checks whether a completion was archived for the request.
func (s *CompletionArchive) Exists(requestID string) bool {
	matches, err := s.matches(requestID)
	return err == nil && len(matches) > 0
}

// RemoveOlderThan deletes completions archived before cutoff and returns
// how many were removed.
func (s *CompletionArchive) RemoveOlderThan(cutoff time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.basePath, "*_*.txt"))
	if err != nil {
		return 0, fmt.Errorf("failed to glob archive files: %w", err)
	}

	removed := 0
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), ".txt")
		i := strings.LastIndexByte(name, '_')
		ts, err := time.Parse(archiveTimeLayout, name[i+1:])
		if err != nil || !ts.Before(cutoff) {
			continue
		}
		if err := os.Remove(match); err != nil {
			return removed, fmt.Errorf("failed to remove stale file %s: %w", match, err)
		}
		removed++
	}
	return removed, nil
}
