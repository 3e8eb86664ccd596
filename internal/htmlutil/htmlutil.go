// Package htmlutil has small DOM editing helpers over golang.org/x/net/html.
package htmlutil

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const spaces = " \t\n\r\f\u00a0"

// RemoveElement detaches n from its parent. The text that followed n is
// kept and merged into the text that preceded it, if any.
func RemoveElement(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	prev, next := n.PrevSibling, n.NextSibling
	parent.RemoveChild(n)
	if prev != nil && next != nil && prev.Type == html.TextNode && next.Type == html.TextNode {
		prev.Data += next.Data
		parent.RemoveChild(next)
	}
}

// StripSpaceBefore right-strips the text immediately preceding n. Text
// siblings that become empty are skipped so the strip reaches real text.
func StripSpaceBefore(n *html.Node) {
	for p := n.PrevSibling; p != nil && p.Type == html.TextNode; p = p.PrevSibling {
		p.Data = strings.TrimRight(p.Data, spaces)
		if p.Data != "" {
			return
		}
	}
}

// Unwrap replaces n with its children.
func Unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}

// TextContent returns the concatenated text of n and its descendants.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			} else {
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

// MergeText joins adjacent text nodes below n and drops empty ones.
func MergeText(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
			if c.Data == "" {
				n.RemoveChild(c)
			}
		} else {
			MergeText(c)
		}
		c = next
	}
}

// Clone deep-copies n. The copy has no parent or siblings.
func Clone(n *html.Node) *html.Node {
	m := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.AppendChild(Clone(c))
	}
	return m
}

// NewElement creates a detached element.
func NewElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: atom.Lookup([]byte(tag)), Data: tag}
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes every attribute named key.
func RemoveAttr(n *html.Node, keys ...string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		drop := false
		for _, k := range keys {
			if a.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// HasClass reports whether n's class attribute contains class.
func HasClass(n *html.Node, class string) bool {
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// Render serialises n.
func Render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// IsWhitespace reports whether s has no visible characters.
func IsWhitespace(s string) bool {
	return strings.Trim(s, spaces) == ""
}
