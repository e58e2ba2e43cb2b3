package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
)

// LoadBlessedTags reads the tag whitelist at path, one tag per line,
// ignoring blank lines and surrounding whitespace. A missing file is
// not an error: linting simply runs disabled, with a warning so the
// operator notices.
func LoadBlessedTags(path string, logger *zap.Logger) (bookmark.TagSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("blessed tags file not found, tag linting disabled",
				zap.String("path", path))
			return bookmark.NewTagSet(), nil
		}
		return nil, fmt.Errorf("read blessed tags %s: %w", path, err)
	}

	set := bookmark.NewTagSet()
	for _, line := range strings.Split(string(data), "\n") {
		if tag := strings.TrimSpace(line); tag != "" {
			set[tag] = struct{}{}
		}
	}

	logger.Info("blessed tags loaded",
		zap.String("path", path),
		zap.Int("count", set.Len()))
	return set, nil
}
