package snippet

import (
	"strconv"
	"strings"
	"time"

	"github.com/deidaraiorek/snippethunt/internal/wikitext"
)

type english struct{ Base }

func (l english) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	switch {
	case t.Matches("convert"):
		return strings.Join(firstParams(t, 2, strip), " ")
	case l.IsCitationNeeded(t):
		return CitationNeededMarker
	}
	return ""
}

// TemplateDate parses the "date" parameter, e.g. {{cn|date=July 2009}}.
func (l english) TemplateDate(t *wikitext.Template) (time.Time, bool) {
	p := t.Get("date")
	if p == nil {
		return time.Time{}, false
	}
	d, err := time.Parse("January 2006", strings.TrimSpace(p.Value.StripCode(wikitext.DefaultStripper{})))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// german keeps most of the markup: de extracts whole sections, where the
// surrounding templates and formatting matter.
type german struct{ Base }

var germanKeptTags = map[string]bool{"i": true, "b": true, "li": true, "dt": true, "dd": true}

func (l german) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	if l.IsCitationNeeded(t) {
		return ""
	}
	name := strings.ToLower(t.NameString())
	if strings.Contains(name, "infobox") || strings.Contains(name, "taxobox") {
		return ""
	}
	if t.Matches("Überarbeiten") {
		return ""
	}
	return t.String()
}

func (l german) StripTag(t *wikitext.Tag, strip wikitext.StripFunc) string {
	if t.Name == "ref" {
		return RefMarker
	}
	if !germanKeptTags[t.Name] {
		return ""
	}
	kept := *t
	kept.Contents = wikitext.NewText(wikitext.StripTagContents(t, strip))
	kept.SelfClosing, kept.Void = false, false
	if kept.CloseRaw == "" {
		kept.CloseRaw = "</" + t.TagName + ">"
	}
	return kept.String()
}

// StripHeading renders subsection headings as bold lines.
func (l german) StripHeading(h *wikitext.Heading, strip wikitext.StripFunc) string {
	if h.Level <= 2 {
		return ""
	}
	return "'''" + strings.TrimSpace(strip(h.Title)) + "'''\n\n"
}

type french struct{ Base }

func (l french) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	switch {
	case t.Matches("unité"):
		return strings.Join(firstParams(t, 2, strip), " ")
	case l.IsCitationNeeded(t):
		if ps := positional(t); len(ps) > 0 {
			return stripParam(ps[0], strip) + CitationNeededMarker
		}
		return CitationNeededMarker
	}
	return ""
}

type italian struct{ Base }

func (l italian) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	switch {
	case t.Matches("bandiera"):
		return stripParam(t.Get("1"), strip)
	case t.Matches("citazione"):
		if len(t.Params) == 0 {
			return ""
		}
		return "« " + stripParam(t.Params[0], strip) + " »"
	}
	return l.Base.StripTemplate(t, strip)
}

type japanese struct{ Base }

func (l japanese) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	switch {
	case t.Matches("仮リンク"):
		if len(t.Params) == 0 {
			return ""
		}
		return stripParam(t.Params[0], strip)
	case l.IsCitationNeeded(t):
		return CitationNeededMarker
	}
	return ""
}

type russian struct{ Base }

// StripTemplate keeps the first parameter of a citation needed template
// unless it is part of a date, as in {{нет АИ|23|01|2017}}.
func (l russian) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	if !l.IsCitationNeeded(t) {
		return l.Base.StripTemplate(t, strip)
	}
	text := ""
	if len(t.Params) > 0 {
		p := stripParam(t.Params[0], strip)
		if _, err := strconv.Atoi(p); err != nil {
			text = p
		}
	}
	return text + CitationNeededMarker
}

type swedish struct{ Base }

func (l swedish) StripTemplate(t *wikitext.Template, strip wikitext.StripFunc) string {
	if l.IsCitationNeeded(t) {
		return CitationNeededMarker
	}
	return ""
}
