// Package snippet extracts short HTML passages carrying citation needed
// markers from wiki markup.
package snippet

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// CitationNeededMarker stands in for a citation needed template in text
	// and survives expansion through the remote parser.
	CitationNeededMarker = "7b94863f3091b449e6ab04d4"
	// RefMarker stands in for a <ref> tag in text.
	RefMarker = "ec5b89dc49c433a9521a139"

	CNMarkerClass       = "ch-" + CitationNeededMarker
	SnippetWrapperClass = "ch-snippet"
)

// ErrNoTemplates is returned when a language has no citation needed
// templates to look for.
var ErrNoTemplates = errors.New("snippet: no citation needed templates configured")

// Snippet is one extracted passage.
type Snippet struct {
	Section string // plain section title, empty for the lead
	HTML    string
	Dates   []time.Time // ascending
}

// OldestDate returns the earliest template date, if any.
func (s Snippet) OldestDate() (time.Time, bool) {
	if len(s.Dates) == 0 {
		return time.Time{}, false
	}
	return s.Dates[0], true
}

// Digest is the short SHA-1 hex digest used for every stored id.
func Digest(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// ID returns the stable id of a snippet within an article.
func ID(title, html string) string {
	return Digest(title + html)
}

// SectionAnchor escapes a section title the way MediaWiki builds fragment
// ids.
func SectionAnchor(title string) string {
	s := url.QueryEscape(strings.ReplaceAll(title, " ", "_"))
	s = strings.ReplaceAll(s, "~", "%7E")
	s = strings.ReplaceAll(s, "%3A", ":")
	return strings.ReplaceAll(s, "%", ".")
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
