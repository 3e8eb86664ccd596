package wikitext

import (
	"errors"
	"strings"
)

// ErrNodeNotFound is returned by Replace when the node is no longer part of
// the tree, typically because an enclosing node was replaced first.
var ErrNodeNotFound = errors.New("wikitext: node not found")

// Wikicode is an ordered list of nodes.
type Wikicode struct {
	Nodes []Node
}

// NewText wraps a string as a Wikicode holding a single text node.
func NewText(s string) *Wikicode {
	if s == "" {
		return &Wikicode{}
	}
	return &Wikicode{Nodes: []Node{&TextNode{Value: s}}}
}

func (w *Wikicode) String() string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range w.Nodes {
		b.WriteString(n.String())
	}
	return b.String()
}

func (w *Wikicode) appendText(s string) {
	if len(w.Nodes) > 0 {
		if t, ok := w.Nodes[len(w.Nodes)-1].(*TextNode); ok {
			t.Value += s
			return
		}
	}
	w.Nodes = append(w.Nodes, &TextNode{Value: s})
}

// Get returns the i-th top-level node, or nil.
func (w *Wikicode) Get(i int) Node {
	if i < 0 || i >= len(w.Nodes) {
		return nil
	}
	return w.Nodes[i]
}

// Sections splits the top-level nodes at headings. With includeLead the
// nodes before the first heading form section 0, even when empty. With
// flat, a section stops at the next heading of any level; otherwise it
// extends over deeper subsections. Sections share nodes with w.
func (w *Wikicode) Sections(includeLead, includeHeadings, flat bool) []*Wikicode {
	var headings []int
	for i, n := range w.Nodes {
		if _, ok := n.(*Heading); ok {
			headings = append(headings, i)
		}
	}

	var out []*Wikicode
	if includeLead {
		end := len(w.Nodes)
		if len(headings) > 0 {
			end = headings[0]
		}
		out = append(out, &Wikicode{Nodes: append([]Node(nil), w.Nodes[:end]...)})
	}

	for hi, start := range headings {
		level := w.Nodes[start].(*Heading).Level
		end := len(w.Nodes)
		for _, next := range headings[hi+1:] {
			if flat || w.Nodes[next].(*Heading).Level <= level {
				end = next
				break
			}
		}
		from := start
		if !includeHeadings {
			from++
		}
		out = append(out, &Wikicode{Nodes: append([]Node(nil), w.Nodes[from:end]...)})
	}
	return out
}

// Walk visits every node depth-first, parents before children.
func (w *Wikicode) Walk(fn func(Node)) {
	if w == nil {
		return
	}
	for _, n := range w.Nodes {
		fn(n)
		for _, c := range children(n) {
			c.Walk(fn)
		}
	}
}

// FilterTemplates returns every template in the tree, including nested ones.
func (w *Wikicode) FilterTemplates() []*Template {
	var out []*Template
	w.Walk(func(n Node) {
		if t, ok := n.(*Template); ok {
			out = append(out, t)
		}
	})
	return out
}

// FilterTags returns every tag in the tree, including nested ones.
func (w *Wikicode) FilterTags() []*Tag {
	var out []*Tag
	w.Walk(func(n Node) {
		if t, ok := n.(*Tag); ok {
			out = append(out, t)
		}
	})
	return out
}

// Replace swaps old for repl wherever old occurs in the tree.
func (w *Wikicode) Replace(old, repl Node) error {
	if w.replace(old, repl) {
		return nil
	}
	return ErrNodeNotFound
}

func (w *Wikicode) replace(old, repl Node) bool {
	if w == nil {
		return false
	}
	for i, n := range w.Nodes {
		if n == old {
			w.Nodes[i] = repl
			return true
		}
		for _, c := range children(n) {
			if c.replace(old, repl) {
				return true
			}
		}
	}
	return false
}

func children(n Node) []*Wikicode {
	switch n := n.(type) {
	case *Template:
		out := []*Wikicode{n.Name}
		for _, p := range n.Params {
			out = append(out, p.Name, p.Value)
		}
		return out
	case *Wikilink:
		if n.Text != nil {
			return []*Wikicode{n.Title, n.Text}
		}
		return []*Wikicode{n.Title}
	case *ExternalLink:
		if n.Title != nil {
			return []*Wikicode{n.URL, n.Title}
		}
		return []*Wikicode{n.URL}
	case *Heading:
		return []*Wikicode{n.Title}
	case *Tag:
		if n.Contents != nil {
			return []*Wikicode{n.Contents}
		}
	}
	return nil
}
