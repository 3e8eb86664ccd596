package wikitext

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Node is an element of a Wikicode tree.
type Node interface {
	String() string
}

type TextNode struct {
	Value string
}

func (t *TextNode) String() string { return t.Value }

type CommentNode struct {
	Raw string
}

func (c *CommentNode) String() string { return c.Raw }

// Parameter is a template argument. Positional parameters carry their
// 1-based index as Name and have ShowKey unset.
type Parameter struct {
	Name    *Wikicode
	Value   *Wikicode
	ShowKey bool
}

func (p *Parameter) String() string {
	if p.ShowKey {
		return p.Name.String() + "=" + p.Value.String()
	}
	return p.Value.String()
}

type Template struct {
	Name   *Wikicode
	Params []*Parameter
}

func (t *Template) String() string {
	var b strings.Builder
	b.WriteString("{{")
	b.WriteString(t.Name.String())
	for _, p := range t.Params {
		b.WriteByte('|')
		b.WriteString(p.String())
	}
	b.WriteString("}}")
	return b.String()
}

// Matches compares the template name with name the way MediaWiki resolves
// titles: surrounding whitespace is ignored, the first letter is
// case-insensitive and underscores equal spaces.
func (t *Template) Matches(name string) bool {
	return normalizeTitle(t.Name.StripCode(DefaultStripper{})) == normalizeTitle(name)
}

// NameString returns the trimmed template name.
func (t *Template) NameString() string {
	return strings.TrimSpace(t.Name.String())
}

// Get returns the last parameter named name, or nil.
func (t *Template) Get(name string) *Parameter {
	for i := len(t.Params) - 1; i >= 0; i-- {
		if strings.TrimSpace(t.Params[i].Name.String()) == name {
			return t.Params[i]
		}
	}
	return nil
}

// Has reports whether a parameter named name exists.
func (t *Template) Has(name string) bool {
	return t.Get(name) != nil
}

// Positional returns the positional (non show-key) parameters in order.
func (t *Template) Positional() []*Parameter {
	var out []*Parameter
	for _, p := range t.Params {
		if !p.ShowKey {
			out = append(out, p)
		}
	}
	return out
}

type Wikilink struct {
	Title *Wikicode
	Text  *Wikicode // nil when there is no separator
}

func (l *Wikilink) String() string {
	if l.Text == nil {
		return "[[" + l.Title.String() + "]]"
	}
	return "[[" + l.Title.String() + "|" + l.Text.String() + "]]"
}

type ExternalLink struct {
	URL      *Wikicode
	Title    *Wikicode // nil when there is no separator
	Brackets bool
}

func (l *ExternalLink) String() string {
	if !l.Brackets {
		return l.URL.String()
	}
	if l.Title == nil {
		return "[" + l.URL.String() + "]"
	}
	return "[" + l.URL.String() + " " + l.Title.String() + "]"
}

type Heading struct {
	Title *Wikicode
	Level int
	Trail string // whitespace after the closing marks
}

func (h *Heading) String() string {
	marks := strings.Repeat("=", h.Level)
	return marks + h.Title.String() + marks + h.Trail
}

// Attribute is an HTML attribute of a Tag.
type Attribute struct {
	Pad   string // whitespace before the name
	Name  string
	Eq    string // "=" with surrounding whitespace, empty for bare attributes
	Quote string // `"`, `'` or empty
	Value string
}

func (a *Attribute) String() string {
	if a.Eq == "" {
		return a.Pad + a.Name
	}
	return a.Pad + a.Name + a.Eq + a.Quote + a.Value + a.Quote
}

type Tag struct {
	Name        string // lower-cased
	TagName     string // as written
	Attrs       []*Attribute
	PadEnd      string
	Contents    *Wikicode
	SelfClosing bool
	Void        bool
	CloseRaw    string
}

// NewTag builds a tag with double-quoted attributes.
func NewTag(name string, attrs [][2]string, contents *Wikicode) *Tag {
	t := &Tag{Name: strings.ToLower(name), TagName: name, Contents: contents}
	for _, a := range attrs {
		t.Attrs = append(t.Attrs, &Attribute{Pad: " ", Name: a[0], Eq: "=", Quote: `"`, Value: a[1]})
	}
	if contents == nil {
		t.Contents = &Wikicode{}
	}
	t.CloseRaw = "</" + name + ">"
	return t
}

func (t *Tag) String() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(t.TagName)
	for _, a := range t.Attrs {
		b.WriteString(a.String())
	}
	b.WriteString(t.PadEnd)
	if t.SelfClosing {
		b.WriteString("/>")
		return b.String()
	}
	b.WriteByte('>')
	if t.Void {
		return b.String()
	}
	if t.Contents != nil {
		b.WriteString(t.Contents.String())
	}
	b.WriteString(t.CloseRaw)
	return b.String()
}

// Attr returns the value of the named attribute.
func (t *Tag) Attr(name string) (string, bool) {
	for _, a := range t.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// RemoveAttr drops every attribute called name.
func (t *Tag) RemoveAttr(name string) {
	kept := t.Attrs[:0]
	for _, a := range t.Attrs {
		if !strings.EqualFold(a.Name, name) {
			kept = append(kept, a)
		}
	}
	t.Attrs = kept
}

var attrRegexp = regexp.MustCompile(`^(\s+)([^\s=/>"']+)(?:(\s*=\s*)(?:"([^"]*)"|'([^']*)'|([^\s>"']+)))?`)

func parseAttrs(raw string) ([]*Attribute, string) {
	var attrs []*Attribute
	for {
		m := attrRegexp.FindStringSubmatchIndex(raw)
		if m == nil {
			return attrs, raw
		}
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return raw[m[2*i]:m[2*i+1]]
		}
		a := &Attribute{Pad: group(1), Name: group(2), Eq: group(3)}
		switch {
		case m[8] >= 0:
			a.Quote, a.Value = `"`, group(4)
		case m[10] >= 0:
			a.Quote, a.Value = "'", group(5)
		default:
			a.Value = group(6)
		}
		attrs = append(attrs, a)
		raw = raw[m[1]:]
	}
}

func normalizeTitle(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func positionalName(i int) *Wikicode {
	return &Wikicode{Nodes: []Node{&TextNode{Value: strconv.Itoa(i)}}}
}
