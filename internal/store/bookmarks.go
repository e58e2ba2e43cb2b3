// Package store reads and writes the Pinboard-style bookmark export
// and the blessed-tags file. The wire format keeps Pinboard's quirks:
// tags are a single space-delimited string per bookmark, booleans are
// "yes"/"no" strings, and the file is a flat JSON array.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
)

// record is the on-disk shape. Tags stay raw so both the canonical
// string form and the list form some exporters produce decode cleanly.
type record struct {
	Href        string          `json:"href"`
	Description string          `json:"description"`
	Extended    string          `json:"extended"`
	Meta        string          `json:"meta"`
	Hash        string          `json:"hash"`
	Time        string          `json:"time"`
	Shared      string          `json:"shared"`
	ToRead      string          `json:"toread"`
	Tags        json.RawMessage `json:"tags"`
}

type wireRecord struct {
	Href        string `json:"href"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Meta        string `json:"meta"`
	Hash        string `json:"hash"`
	Time        string `json:"time"`
	Shared      string `json:"shared"`
	ToRead      string `json:"toread"`
	Tags        string `json:"tags"`
}

// LoadBookmarks parses the export at path.
func LoadBookmarks(path string) ([]bookmark.Bookmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bookmarks %s: %w", path, err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse bookmarks %s: %w", path, err)
	}

	bms := make([]bookmark.Bookmark, 0, len(records))
	for i, r := range records {
		tags, err := decodeTags(r.Tags)
		if err != nil {
			return nil, fmt.Errorf("parse bookmarks %s: record %d: %w", path, i, err)
		}
		bms = append(bms, bookmark.Bookmark{
			Href:        r.Href,
			Description: r.Description,
			Extended:    r.Extended,
			Meta:        r.Meta,
			Hash:        r.Hash,
			Time:        r.Time,
			Shared:      r.Shared,
			ToRead:      r.ToRead,
			Tags:        tags,
		})
	}
	return bms, nil
}

// SaveBookmarks writes the export to path with two-space indentation,
// joining tags back into Pinboard's space-delimited form.
func SaveBookmarks(path string, bms []bookmark.Bookmark) error {
	records := make([]wireRecord, 0, len(bms))
	for _, b := range bms {
		records = append(records, wireRecord{
			Href:        b.Href,
			Description: b.Description,
			Extended:    b.Extended,
			Meta:        b.Meta,
			Hash:        b.Hash,
			Time:        b.Time,
			Shared:      b.Shared,
			ToRead:      b.ToRead,
			Tags:        strings.Join(b.Tags, " "),
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bookmarks: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bookmarks %s: %w", path, err)
	}
	return nil
}

func decodeTags(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return strings.Fields(joined), nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var tags []string
		for _, t := range list {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags, nil
	}

	return nil, fmt.Errorf("tags must be a string or a list of strings")
}
