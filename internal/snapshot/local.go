package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes snapshots beneath a base directory and returns file:// URIs.
type Local struct {
	baseDir string
	prefix  string
}

// NewLocal validates the base directory, creating it when absent.
func NewLocal(baseDir, prefix string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("base directory path is not a directory")
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	default:
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	return &Local{baseDir: baseDir, prefix: prefix}, nil
}

// Save writes the body to its derived key and returns a file:// URI.
func (s *Local) Save(_ context.Context, pageURL string, body []byte) (string, error) {
	rel := Key(s.prefix, pageURL, body)
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(rel))

	// Verify the cleaned path stays within baseDir; hosts come from
	// uncontrolled URLs.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return "file://" + fullPath, nil
}
