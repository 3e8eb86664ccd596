package mwapi

import (
	"sort"
	"strconv"
	"time"
)

// Page is one entry of query.pages.
type Page map[string]any

// Revision is one entry of a page's revisions list.
type Revision map[string]any

// Pages returns query.pages ordered by page id.
func Pages(resp Response) []Page {
	query, _ := resp["query"].(map[string]any)
	pages, _ := query["pages"].(map[string]any)

	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	out := make([]Page, 0, len(keys))
	for _, k := range keys {
		if p, ok := pages[k].(map[string]any); ok {
			out = append(out, Page(p))
		}
	}
	return out
}

func (p Page) Title() string {
	s, _ := p["title"].(string)
	return s
}

func (p Page) ID() int {
	f, _ := p["pageid"].(float64)
	return int(f)
}

// Missing reports whether the API flagged the page as missing.
func (p Page) Missing() bool {
	_, ok := p["missing"]
	return ok
}

// Revisions returns the page's revisions in response order.
func Revisions(p Page) []Revision {
	list, _ := p["revisions"].([]any)
	out := make([]Revision, 0, len(list))
	for _, r := range list {
		if m, ok := r.(map[string]any); ok {
			out = append(out, Revision(m))
		}
	}
	return out
}

// RevisionContent returns the wikitext of a revision, supporting both the
// legacy "*" key and the slots layout.
func RevisionContent(r Revision) string {
	if s, ok := r["*"].(string); ok {
		return s
	}
	slots, _ := r["slots"].(map[string]any)
	main, _ := slots["main"].(map[string]any)
	if s, ok := main["*"].(string); ok {
		return s
	}
	s, _ := main["content"].(string)
	return s
}

func (r Revision) ID() int {
	f, _ := r["revid"].(float64)
	return int(f)
}

// Timestamp parses the ISO 8601 UTC timestamp of a revision.
func (r Revision) Timestamp() (time.Time, bool) {
	s, _ := r["timestamp"].(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseText returns parse.text["*"] from an action=parse response.
func ParseText(resp Response) (string, bool) {
	parse, _ := resp["parse"].(map[string]any)
	switch text := parse["text"].(type) {
	case map[string]any:
		s, ok := text["*"].(string)
		return s, ok
	case string:
		return text, true
	}
	return "", false
}

// Redirects returns the from -> to pairs of query.redirects.
func Redirects(resp Response) map[string]string {
	query, _ := resp["query"].(map[string]any)
	list, _ := query["redirects"].([]any)
	out := make(map[string]string, len(list))
	for _, r := range list {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		from, _ := m["from"].(string)
		to, _ := m["to"].(string)
		if from != "" && to != "" {
			out[from] = to
		}
	}
	return out
}

// PageRedirects returns the titles listed under a page's "redirects" prop.
func PageRedirects(p Page) []string {
	list, _ := p["redirects"].([]any)
	out := make([]string, 0, len(list))
	for _, r := range list {
		if m, ok := r.(map[string]any); ok {
			if t, ok := m["title"].(string); ok {
				out = append(out, t)
			}
		}
	}
	return out
}
