package wikitext

import (
	"html"
	"strings"
)

// StripFunc strips a nested Wikicode with the same Stripper.
type StripFunc func(*Wikicode) string

// Stripper decides what remains of markup nodes when a tree is reduced to
// plain text. Implementations recurse into children through strip.
type Stripper interface {
	StripTemplate(t *Template, strip StripFunc) string
	StripTag(t *Tag, strip StripFunc) string
	StripWikilink(l *Wikilink, strip StripFunc) string
	StripHeading(h *Heading, strip StripFunc) string
}

// Tags whose contents are not displayed as text.
var invisibleTags = map[string]bool{
	"categorytree": true, "ce": true, "chem": true, "gallery": true,
	"graph": true, "imagemap": true, "inputbox": true, "math": true,
	"nowiki": true, "pre": true, "score": true, "section": true,
	"source": true, "syntaxhighlight": true, "templatedata": true,
	"timeline": true,
}

// DefaultStripper drops templates and headings, keeps the visible contents
// of tags and the displayed text of links.
type DefaultStripper struct{}

func (DefaultStripper) StripTemplate(*Template, StripFunc) string { return "" }

func (DefaultStripper) StripTag(t *Tag, strip StripFunc) string {
	return StripTagContents(t, strip)
}

func (DefaultStripper) StripWikilink(l *Wikilink, strip StripFunc) string {
	return StripWikilinkText(l, strip)
}

func (DefaultStripper) StripHeading(*Heading, StripFunc) string { return "" }

// StripTagContents returns the stripped contents of visible tags.
func StripTagContents(t *Tag, strip StripFunc) string {
	if t.Contents == nil || invisibleTags[t.Name] {
		return ""
	}
	return strip(t.Contents)
}

// StripWikilinkText returns the link text, or its title if it has none.
func StripWikilinkText(l *Wikilink, strip StripFunc) string {
	if l.Text != nil {
		return strip(l.Text)
	}
	return strip(l.Title)
}

// StripCode reduces the tree to plain text. Entities are decoded, leading
// and trailing newlines are dropped and blank-line runs are collapsed.
func (w *Wikicode) StripCode(s Stripper) string {
	if w == nil {
		return ""
	}
	var strip StripFunc
	strip = func(c *Wikicode) string {
		var b strings.Builder
		for _, n := range c.Nodes {
			b.WriteString(stripNode(n, s, strip))
		}
		return collapse(b.String())
	}
	return strip(w)
}

func stripNode(n Node, s Stripper, strip StripFunc) string {
	switch n := n.(type) {
	case *TextNode:
		return html.UnescapeString(n.Value)
	case *CommentNode:
		return ""
	case *Template:
		return s.StripTemplate(n, strip)
	case *Tag:
		return s.StripTag(n, strip)
	case *Wikilink:
		return s.StripWikilink(n, strip)
	case *Heading:
		return s.StripHeading(n, strip)
	case *ExternalLink:
		if n.Brackets {
			if n.Title != nil {
				return strip(n.Title)
			}
			return ""
		}
		return strip(n.URL)
	}
	return n.String()
}

func collapse(s string) string {
	s = strings.Trim(s, "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
