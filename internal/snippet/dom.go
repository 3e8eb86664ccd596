package snippet

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/deidaraiorek/snippethunt/internal/htmlutil"
)

const (
	markerSelector = "span." + CNMarkerClass
	// Section snippets are cut to this many blocks; the UI never shows more.
	maxSectionBlocks = 10
)

func (e *Extractor) snippetsFromHTML(src string, dates map[string]time.Time) ([]Snippet, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse section html: %w", err)
	}
	container := doc.Find("body")
	if wrapper := container.ChildrenFiltered("div.mw-parser-output"); wrapper.Length() == 1 {
		container = wrapper
	}
	e.sanitize(container)

	var roots []*html.Node
	if e.cfg.Extract == extractSection {
		roots = sectionRoots(container)
	} else {
		roots = snippetRoots(container)
	}

	var out []Snippet
	for _, root := range roots {
		if s, ok := e.finalize(root, dates); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// sanitize removes the configured selectors, except inside markers whose
// expansion is shown as is.
func (e *Extractor) sanitize(container *goquery.Selection) {
	for _, sel := range e.strip {
		container.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
			if s.Closest(markerSelector).Length() > 0 {
				return
			}
			htmlutil.RemoveElement(s.Get(0))
		})
	}
}

// snippetRoots cuts one root per paragraph holding a marker, and one per
// list item holding a marker. List items keep their direct neighbours for
// context, unless a neighbour carries a nested list.
func snippetRoots(container *goquery.Selection) []*html.Node {
	var roots []*html.Node
	seen := make(map[*html.Node]bool)
	container.Find(markerSelector).Each(func(_ int, m *goquery.Selection) {
		block := m.Closest("p, ol, ul")
		if block.Length() == 0 {
			return
		}
		if block.Is("p") {
			p := block.Get(0)
			if seen[p] {
				return
			}
			seen[p] = true
			root := htmlutil.NewElement("div")
			root.AppendChild(htmlutil.Clone(p))
			roots = append(roots, root)
			return
		}

		li := m.Closest("li")
		if li.Length() == 0 || li.Get(0).Parent != block.Get(0) || seen[li.Get(0)] {
			return
		}
		seen[li.Get(0)] = true

		root := htmlutil.NewElement("div")
		if prev := block.Prev(); prev.Is("p") {
			root.AppendChild(htmlutil.Clone(prev.Get(0)))
		}
		list := htmlutil.NewElement("ul")
		if prev := li.Prev(); isPlainItem(prev) {
			list.AppendChild(htmlutil.Clone(prev.Get(0)))
		}
		list.AppendChild(htmlutil.Clone(li.Get(0)))
		if next := li.Next(); isPlainItem(next) {
			list.AppendChild(htmlutil.Clone(next.Get(0)))
		}
		root.AppendChild(list)
		roots = append(roots, root)
	})
	return roots
}

func isPlainItem(s *goquery.Selection) bool {
	return s.Is("li") && s.Find("ul, ol").Length() == 0
}

// sectionRoots keeps the whole section, minus its markers, as one root.
func sectionRoots(container *goquery.Selection) []*html.Node {
	container.Find(markerSelector).Each(func(_ int, m *goquery.Selection) {
		htmlutil.RemoveElement(m.Get(0))
	})
	root := htmlutil.NewElement("div")
	blocks := 0
	container.Children().Each(func(_ int, c *goquery.Selection) {
		if blocks == maxSectionBlocks || !c.Is("p, ol, ul") {
			return
		}
		if htmlutil.IsWhitespace(htmlutil.TextContent(c.Get(0))) {
			return
		}
		root.AppendChild(htmlutil.Clone(c.Get(0)))
		blocks++
	})
	if root.FirstChild == nil {
		return nil
	}
	return []*html.Node{root}
}

// finalize cleans a root for publishing and applies the size bounds.
func (e *Extractor) finalize(root *html.Node, dates map[string]time.Time) (Snippet, bool) {
	sel := goquery.NewDocumentFromNode(root)
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		htmlutil.Unwrap(a.Get(0))
	})
	markers := sel.Find(markerSelector).Nodes

	htmlutil.RemoveAttr(root, "id", "class", "style")
	sel.Find("*").Each(func(_ int, s *goquery.Selection) {
		htmlutil.RemoveAttr(s.Get(0), "id", "class", "style")
	})
	htmlutil.SetAttr(root, "class", SnippetWrapperClass)

	var found []time.Time
	for _, m := range markers {
		htmlutil.SetAttr(m, "class", CNMarkerClass)
		if id, ok := htmlutil.Attr(m, "data-id"); ok {
			if d, ok := dates[id]; ok {
				found = append(found, d)
			}
		}
		htmlutil.RemoveAttr(m, "data-id")
		htmlutil.StripSpaceBefore(m)
	}

	length := utf8.RuneCountInString(strings.TrimSpace(htmlutil.TextContent(root)))
	e.stats.Record(length)
	if length <= e.cfg.SnippetMinSize || length >= e.cfg.SnippetMaxSize {
		return Snippet{}, false
	}
	sortDates(found)
	return Snippet{HTML: htmlutil.Render(root), Dates: found}, true
}
