package snippet

import (
	"strconv"
	"strings"
	"time"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/wikitext"
)

// Language holds the per-language policy for recognising citation needed
// templates and reducing markup to text.
type Language interface {
	wikitext.Stripper
	Code() string
	IsCitationNeeded(t *wikitext.Template) bool
	// TemplateDate returns the date a citation needed template was added.
	TemplateDate(t *wikitext.Template) (time.Time, bool)
}

// TemplateSet is an immutable set of template names.
type TemplateSet struct {
	names []string
	lower map[string]bool
}

func NewTemplateSet(names []string) *TemplateSet {
	s := &TemplateSet{lower: make(map[string]bool, len(names))}
	for _, n := range names {
		key := normalizeName(n)
		if key == "" || s.lower[key] {
			continue
		}
		s.lower[key] = true
		s.names = append(s.names, n)
	}
	return s
}

func (s *TemplateSet) Names() []string { return append([]string(nil), s.names...) }

func (s *TemplateSet) Len() int { return len(s.names) }

// Matches reports whether t is one of the templates in the set.
func (s *TemplateSet) Matches(t *wikitext.Template) bool {
	for _, n := range s.names {
		if t.Matches(n) {
			return true
		}
	}
	return false
}

// hasName reports whether the raw name text of a template token is in the
// set, ignoring case.
func (s *TemplateSet) hasName(raw string) bool {
	return s.lower[normalizeName(raw)]
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
}

// Base is the default policy. Languages embed it and override the hooks
// they need.
type Base struct {
	code          string
	templates     *TemplateSet
	linkBlacklist []string
}

func (b Base) Code() string { return b.code }

func (b Base) IsCitationNeeded(t *wikitext.Template) bool {
	return b.templates.Matches(t)
}

// StripTemplate keeps the positional text of citation needed templates
// followed by the marker and drops every other template.
func (b Base) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	if !b.IsCitationNeeded(t) {
		return ""
	}
	var sb strings.Builder
	for _, p := range positional(t) {
		sb.WriteString(strip(p.Value))
	}
	sb.WriteString(CitationNeededMarker)
	return sb.String()
}

func (b Base) StripTag(t *wikitext.Tag, strip wikitext.StripFunc) string {
	switch t.Name {
	case "ref":
		return RefMarker
	case "dt":
		return ""
	case "dd":
		return ":"
	}
	return wikitext.StripTagContents(t, strip)
}

func (b Base) StripWikilink(l *wikitext.Wikilink, strip wikitext.StripFunc) string {
	title := strings.TrimSpace(l.Title.String())
	for _, prefix := range b.linkBlacklist {
		if strings.HasPrefix(title, prefix) {
			return ""
		}
	}
	return wikitext.StripWikilinkText(l, strip)
}

func (b Base) StripHeading(*wikitext.Heading, wikitext.StripFunc) string { return "" }

func (b Base) TemplateDate(*wikitext.Template) (time.Time, bool) { return time.Time{}, false }

var registry = map[string]func(Base) Language{
	"en":     func(b Base) Language { return english{b} },
	"simple": func(b Base) Language { return english{b} },
	"de":     func(b Base) Language { return german{b} },
	"fr":     func(b Base) Language { return french{b} },
	"it":     func(b Base) Language { return italian{b} },
	"ja":     func(b Base) Language { return japanese{b} },
	"ru":     func(b Base) Language { return russian{b} },
	"sv":     func(b Base) Language { return swedish{b} },
}

// NewLanguage returns the policy registered for cfg's language, or Base.
func NewLanguage(cfg *config.Config, templates *TemplateSet) Language {
	b := Base{
		code:          cfg.LangCode,
		templates:     templates,
		linkBlacklist: cfg.WikilinkPrefixBlacklist,
	}
	if ctor, ok := registry[cfg.LangCode]; ok {
		return ctor(b)
	}
	return b
}

// positional returns the parameters addressed by index, whether or not
// their key is written out.
func positional(t *wikitext.Template) []*wikitext.Parameter {
	var out []*wikitext.Parameter
	for _, p := range t.Params {
		if _, err := strconv.Atoi(strings.TrimSpace(p.Name.String())); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func stripParam(p *wikitext.Parameter, strip wikitext.StripFunc) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(strip(p.Value))
}

func firstParams(t *wikitext.Template, n int, strip wikitext.StripFunc) []string {
	var out []string
	for i, p := range t.Params {
		if i == n {
			break
		}
		out = append(out, stripParam(p, strip))
	}
	return out
}
