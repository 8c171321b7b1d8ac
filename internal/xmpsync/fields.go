package xmpsync

import (
	"strings"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/metadata"
)

// XMPFields is the descriptive payload synchronized between the
// catalog and XMP truth sources.
type XMPFields struct {
	Title       string
	Description string
	Keywords    []string
	Rating      int // 0 when absent
	ColorLabel  string
}

// FieldsFromMap extracts the synchronized fields from a raw
// group-prefixed tag map. Hierarchical entries (anything containing a
// pipe) are excluded from the flat keyword list.
func FieldsFromMap(m map[string]interface{}) XMPFields {
	f := XMPFields{
		Title:       metadata.String(m, "Title"),
		Description: metadata.String(m, "Description"),
		Rating:      metadata.ParseRating(m),
		ColorLabel:  metadata.ParseColorLabel(m),
	}
	var kw []string
	if v, ok := metadata.FirstValue(m, "Subject"); ok {
		kw = metadata.CoerceKeywords(v)
	} else if v, ok := metadata.FirstValue(m, "Keywords"); ok {
		kw = metadata.CoerceKeywords(v)
	}
	f.Keywords = filterFlatKeywords(kw)
	return f
}

// FieldsFromRecord builds the synchronized payload from a catalog record.
func FieldsFromRecord(r *catalog.ImageRecord) XMPFields {
	return XMPFields{
		Title:       r.Title,
		Description: r.Description,
		Keywords:    append([]string(nil), r.Tags...),
		Rating:      r.LrRating,
		ColorLabel:  r.ColorLabel,
	}
}

// filterFlatKeywords drops empty entries, owned-branch hierarchical
// entries, anything else containing a pipe, and flat taxonomic markers
// ("Species: ...") written by older exporters. The store rejects the
// latter outright, so admitting one here would fail the whole import.
func filterFlatKeywords(kw []string) []string {
	var out []string
	for _, k := range kw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.HasPrefix(k, "AI|Taxonomy") || strings.HasPrefix(k, "Geo|") {
			continue
		}
		if strings.Contains(k, "|") {
			continue
		}
		if catalog.IsBioclipTag(k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// HasData reports whether any synchronized field carries a value.
func (f XMPFields) HasData() bool {
	return f.Title != "" || f.Description != "" || len(f.Keywords) > 0 ||
		f.Rating != 0 || f.ColorLabel != ""
}

// EqualsRecord applies the sync equality predicate: keyword sets equal
// case-insensitively, title and description equal after trim plus
// lowercase, ratings equal with missing treated as 0.
func (f XMPFields) EqualsRecord(r *catalog.ImageRecord) bool {
	if !keywordSetsEqual(f.Keywords, r.Tags) {
		return false
	}
	if fold(f.Title) != fold(r.Title) {
		return false
	}
	if fold(f.Description) != fold(r.Description) {
		return false
	}
	return f.Rating == r.LrRating
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func keywordSetsEqual(a, b []string) bool {
	as := keywordSet(a)
	bs := keywordSet(b)
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if !bs[k] {
			return false
		}
	}
	return true
}

func keywordSet(kw []string) map[string]bool {
	set := make(map[string]bool, len(kw))
	for _, k := range kw {
		if f := fold(k); f != "" {
			set[f] = true
		}
	}
	return set
}
