package snippet

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/mwapi"
	"github.com/deidaraiorek/snippethunt/internal/wikitext"
)

// Renderer expands a section, with its markers in place, to HTML.
type Renderer interface {
	Render(ctx context.Context, section *wikitext.Wikicode) (string, error)
}

// Parser is the part of the API client used by RemoteRenderer.
type Parser interface {
	Parse(ctx context.Context, params url.Values) (mwapi.Response, error)
}

// RemoteRenderer expands sections with the wiki's own parser.
type RemoteRenderer struct {
	api    Parser
	params map[string]string
}

func NewRemoteRenderer(api Parser, params map[string]string) *RemoteRenderer {
	return &RemoteRenderer{api: api, params: params}
}

func (r *RemoteRenderer) Render(ctx context.Context, section *wikitext.Wikicode) (string, error) {
	params := url.Values{}
	params.Set("text", section.String())
	params.Set("prop", "text")
	params.Set("contentmodel", "wikitext")
	params.Set("disablelimitreport", "true")
	for k, v := range r.params {
		params.Set(k, v)
	}
	resp, err := r.api.Parse(ctx, params)
	if err != nil {
		return "", fmt.Errorf("parse section: %w", err)
	}
	text, ok := mwapi.ParseText(resp)
	if !ok {
		return "", fmt.Errorf("parse section: no text in response")
	}
	return text, nil
}

var (
	spaceBeforeMarkerRegexp = regexp.MustCompile(`\s+(` + CitationNeededMarker + `|` + RefMarker + `)`)
	commaParenRegexp        = regexp.MustCompile(`,\s+\)`)
	emptyParenRegexp        = regexp.MustCompile(`\(\)\s`)
	emptyBracketRegexp      = regexp.MustCompile(`\[\]\s`)
	markerIDRegexp          = regexp.MustCompile(CitationNeededMarker + `(?:\{([0-9-]*)\})?`)
	boldRegexp              = regexp.MustCompile(`'''(.+?)'''`)
	italicRegexp            = regexp.MustCompile(`''(.+?)''`)
	keptTagRegexp           = regexp.MustCompile(`&lt;(/?)(b|i)&gt;`)
	listItemRegexp          = regexp.MustCompile(`^([*#:;]+)\s*(.*)$`)
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// LocalRenderer reduces a section to text through the language policy and
// renders paragraphs and lists without calling the API. Paragraphs holding
// a blacklisted tag or template are dropped.
type LocalRenderer struct {
	stripper   markerStripper
	tags       map[string]bool
	templates  []string
	markerText string
}

func NewLocalRenderer(lang Language, cfg *config.Config) *LocalRenderer {
	tags := make(map[string]bool, len(cfg.TagsBlacklist))
	for _, t := range cfg.TagsBlacklist {
		tags[strings.ToLower(t)] = true
	}
	return &LocalRenderer{
		stripper:   markerStripper{lang},
		tags:       tags,
		templates:  cfg.TemplatesBlacklist,
		markerText: "[" + cfg.CitationNeededTemplateName + "]",
	}
}

func (r *LocalRenderer) Render(_ context.Context, section *wikitext.Wikicode) (string, error) {
	var b strings.Builder
	for _, para := range strings.Split(section.String(), "\n\n") {
		code := wikitext.Parse(para)
		if r.blacklisted(code) {
			continue
		}
		text := cleanupText(code.StripCode(r.stripper))
		if text == "" {
			continue
		}
		r.writeBlock(&b, text)
	}
	return b.String(), nil
}

func (r *LocalRenderer) blacklisted(code *wikitext.Wikicode) bool {
	for _, t := range code.FilterTags() {
		if r.tags[t.Name] {
			return true
		}
	}
	for _, t := range code.FilterTemplates() {
		for _, name := range r.templates {
			if t.Matches(name) {
				return true
			}
		}
	}
	return false
}

// writeBlock renders one paragraph of stripped text. Lines starting with
// list markup become list items; other lines become paragraphs.
func (r *LocalRenderer) writeBlock(b *strings.Builder, text string) {
	list := ""
	closeList := func() {
		if list != "" {
			b.WriteString("</" + list + ">")
			list = ""
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := listItemRegexp.FindStringSubmatch(line); m != nil {
			kind := "ul"
			if strings.HasSuffix(m[1], "#") {
				kind = "ol"
			}
			if kind != list {
				closeList()
				b.WriteString("<" + kind + ">")
				list = kind
			}
			b.WriteString("<li>" + r.inline(m[2]) + "</li>")
			continue
		}
		closeList()
		b.WriteString("<p>" + r.inline(line) + "</p>")
	}
	closeList()
}

func (r *LocalRenderer) inline(s string) string {
	s = escaper.Replace(s)
	s = boldRegexp.ReplaceAllString(s, "<b>$1</b>")
	s = italicRegexp.ReplaceAllString(s, "<i>$1</i>")
	s = keptTagRegexp.ReplaceAllString(s, "<$1$2>")
	return markerIDRegexp.ReplaceAllStringFunc(s, func(m string) string {
		id := markerIDRegexp.FindStringSubmatch(m)[1]
		if id == "" {
			return `<span class="` + CNMarkerClass + `">` + escaper.Replace(r.markerText) + `</span>`
		}
		return `<span class="` + CNMarkerClass + `" data-id="` + id + `">` + escaper.Replace(r.markerText) + `</span>`
	})
}

func cleanupText(s string) string {
	s = strings.TrimSpace(spaceBeforeMarkerRegexp.ReplaceAllString(s, "$1"))
	s = commaParenRegexp.ReplaceAllString(s, ")")
	s = emptyParenRegexp.ReplaceAllString(s, "")
	s = emptyBracketRegexp.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.ReplaceAll(s, RefMarker, ""))
}

// markerStripper expands marker spans through the language's template
// policy and tags the resulting marker with the template id.
type markerStripper struct {
	Language
}

func (m markerStripper) StripTag(t *wikitext.Tag, strip wikitext.StripFunc) string {
	if class, _ := t.Attr("class"); t.Name != "span" || class != CNMarkerClass {
		return m.Language.StripTag(t, strip)
	}
	id, _ := t.Attr("data-id")
	return strings.ReplaceAll(strip(t.Contents), CitationNeededMarker, CitationNeededMarker+"{"+id+"}")
}
