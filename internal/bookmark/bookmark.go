// Package bookmark defines the core value types shared across the
// enrichment pipeline: the bookmark record itself, tag set operations,
// and the liveness outcome produced by the resolver.
package bookmark

// Marker tags the pipeline attaches to record what happened to a
// bookmark during a run. They use the "data:" prefix so they sort
// together and cannot collide with topical tags.
const (
	// TagRedirected marks a bookmark whose URL was rewritten to the
	// final location after following redirects.
	TagRedirected = "data:redirected"

	// TagOffline marks a bookmark that failed every liveness probe.
	TagOffline = "data:offline"
)

// Bookmark is a single Pinboard-style bookmark. Tags are held as a
// list in memory; the wire format joins them with single spaces (see
// the store package).
type Bookmark struct {
	Href        string
	Description string
	Extended    string
	Meta        string
	Hash        string
	Time        string
	Shared      string
	ToRead      string
	Tags        []string
}

// HasTag reports whether the bookmark already carries tag.
func (b *Bookmark) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends tag unless it is already present, so marker tags stay
// single even when a bookmark is enriched repeatedly.
func (b *Bookmark) AddTag(tag string) {
	if b.HasTag(tag) {
		return
	}
	b.Tags = append(b.Tags, tag)
}

// Clone returns a deep copy. Workers enrich copies so a failed slot can
// fall back to the untouched input.
func (b Bookmark) Clone() Bookmark {
	c := b
	if b.Tags != nil {
		c.Tags = append([]string(nil), b.Tags...)
	}
	return c
}

// MergeTags unions suggested into existing: existing tags keep their
// order, new suggestions follow in first-seen order. Matching is exact
// and case-sensitive.
func MergeTags(existing, suggested []string) []string {
	merged := append([]string(nil), existing...)
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[t] = struct{}{}
	}
	for _, t := range suggested {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return merged
}

// TagSet is the blessed-tag whitelist used by LintTags.
type TagSet map[string]struct{}

// NewTagSet builds a set from a list of tags, skipping empties.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Len returns the number of tags in the set.
func (s TagSet) Len() int { return len(s) }

// LintTags filters tags against the blessed set, preserving input
// order. An empty blessed set disables linting: every tag is kept and
// nothing is reported dropped. Otherwise kept holds exactly the tags
// found in blessed and dropped the rest, marker tags included when the
// operator chose not to bless them.
func LintTags(tags []string, blessed TagSet) (kept, dropped []string) {
	if blessed.Len() == 0 {
		return append([]string(nil), tags...), nil
	}
	for _, t := range tags {
		if blessed.Has(t) {
			kept = append(kept, t)
		} else {
			dropped = append(dropped, t)
		}
	}
	return kept, dropped
}
