// Package snapshot persists the rendered bodies of live bookmarks so a page
// can be inspected later even if it goes offline. Stores are optional; the
// enricher skips snapshotting when none is configured.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Store saves one page snapshot and returns its URI.
type Store interface {
	Save(ctx context.Context, pageURL string, body []byte) (string, error)
}

// Key derives the object path for a snapshot: the page host, then the first
// 16 hex characters of the body hash. Identical bodies share one object.
func Key(prefix, pageURL string, body []byte) string {
	host := "unknown"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		host = u.Host
	}
	sum := sha256.Sum256(body)
	name := fmt.Sprintf("%s/%s.html", host, hex.EncodeToString(sum[:])[:16])
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
