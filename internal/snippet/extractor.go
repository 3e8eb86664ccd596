package snippet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/wikitext"
)

const extractSection = "section"

var styleRegexp = regexp.MustCompile(`'{2,}`)

// Extractor turns article markup into snippets. An Extractor is not safe
// for concurrent use: each worker owns one, along with its API client.
type Extractor struct {
	cfg       *config.Config
	lang      Language
	templates *TemplateSet
	renderer  Renderer
	strip     []cascadia.Selector
	stats     *Stats
	logger    *zap.Logger
}

type Option func(*Extractor)

// WithTemplates replaces the configured citation needed templates, usually
// with the list extended by ResolveRedirects.
func WithTemplates(names []string) Option {
	return func(e *Extractor) { e.templates = NewTemplateSet(names) }
}

// WithRenderer overrides the renderer chosen from the configuration.
func WithRenderer(r Renderer) Option {
	return func(e *Extractor) { e.renderer = r }
}

// WithStats makes the extractor record lengths into a shared histogram.
func WithStats(s *Stats) Option {
	return func(e *Extractor) { e.stats = s }
}

// New builds an extractor for cfg's language. Sections are expanded with
// api unless the language renders snippets locally.
func New(cfg *config.Config, api Parser, logger *zap.Logger, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		cfg:       cfg,
		templates: NewTemplateSet(cfg.CitationNeededTemplates),
		stats:     NewStats(),
		logger:    logger.Named("snippet"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.templates.Len() == 0 {
		return nil, ErrNoTemplates
	}
	for _, raw := range cfg.HTMLCSSSelectorsToStrip {
		sel, err := cascadia.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", raw, err)
		}
		e.strip = append(e.strip, sel)
	}
	e.lang = NewLanguage(cfg, e.templates)
	if e.renderer == nil {
		if cfg.HTMLSnippet {
			if api == nil {
				return nil, errors.New("snippet: html snippets need an API client")
			}
			e.renderer = NewRemoteRenderer(api, cfg.HTMLParseParameters)
		} else {
			e.renderer = NewLocalRenderer(e.lang, cfg)
		}
	}
	return e, nil
}

func (e *Extractor) Language() Language { return e.lang }

func (e *Extractor) Stats() *Stats { return e.stats }

// Extract returns the snippets of an article in document order. Malformed
// markup yields no snippets rather than an error; only a cancelled context
// is reported.
func (e *Extractor) Extract(ctx context.Context, text string) ([]Snippet, error) {
	var sections []*wikitext.Wikicode
	if e.cfg.Extract == extractSection {
		sections = e.sectionExtents(wikitext.Parse(text))
	} else {
		sections = e.fastParse(text).Sections(true, true, true)
	}

	var out []Snippet
	seen := make(map[[2]string]bool)
	for i, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.hasCitationNeeded(sec) {
			continue
		}
		title := sectionTitle(sec)
		snippets, err := e.extractSection(ctx, i, sec)
		if errors.Is(err, wikitext.ErrNodeNotFound) {
			e.logger.Info("nested citation needed templates, dropping article")
			articlesExtracted.WithLabelValues("nested").Inc()
			return nil, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Info("skipping section", zap.String("section", title), zap.Error(err))
			continue
		}
		for _, s := range snippets {
			key := [2]string{title, s.HTML}
			if seen[key] {
				continue
			}
			seen[key] = true
			s.Section = title
			out = append(out, s)
		}
	}

	if len(out) == 0 {
		articlesExtracted.WithLabelValues("empty").Inc()
	} else {
		articlesExtracted.WithLabelValues("snippets").Inc()
	}
	return out, nil
}

func (e *Extractor) extractSection(ctx context.Context, index int, sec *wikitext.Wikicode) ([]Snippet, error) {
	for _, tpl := range sec.FilterTemplates() {
		for _, p := range tpl.Params {
			p.ShowKey = true
		}
	}

	dates := make(map[string]time.Time)
	n := 0
	for _, tpl := range sec.FilterTemplates() {
		if !e.lang.IsCitationNeeded(tpl) {
			continue
		}
		id := fmt.Sprintf("%d-%d", index, n)
		n++
		if d, ok := e.lang.TemplateDate(tpl); ok {
			dates[id] = d
		}
		marker := wikitext.NewTag("span",
			[][2]string{{"class", CNMarkerClass}, {"data-id", id}},
			wikitext.NewText(tpl.String()))
		if err := sec.Replace(tpl, marker); err != nil {
			return nil, err
		}
	}

	for _, tag := range sec.FilterTags() {
		if tag.Name == "ref" {
			tag.RemoveAttr("group")
		}
	}

	html, err := e.renderer.Render(ctx, sec)
	if err != nil {
		return nil, err
	}
	return e.snippetsFromHTML(html, dates)
}

func (e *Extractor) hasCitationNeeded(sec *wikitext.Wikicode) bool {
	for _, tpl := range sec.FilterTemplates() {
		if e.lang.IsCitationNeeded(tpl) {
			return true
		}
	}
	return false
}

// fastParse builds a tree holding only the sections that mention a
// citation needed template, which avoids building most of a long article.
func (e *Extractor) fastParse(text string) *wikitext.Wikicode {
	tokens, err := wikitext.Tokenize(text, true)
	if err != nil {
		return wikitext.Parse(text)
	}
	tokens = append(tokens, wikitext.Token{Kind: wikitext.HeadingStart})

	var reduced []wikitext.Token
	start, found := 0, false
	for i := 0; i+1 < len(tokens); i++ {
		t1, t2 := tokens[i], tokens[i+1]
		if t2.Kind == wikitext.HeadingStart {
			if found {
				reduced = append(reduced, tokens[start:i+1]...)
			}
			start, found = i+1, false
		}
		if t1.Kind == wikitext.TemplateOpen && t2.Kind == wikitext.Text && e.templates.hasName(t2.Raw) {
			found = true
		}
	}

	code, err := wikitext.Build(reduced)
	if err != nil {
		return wikitext.Parse(text)
	}
	return code
}

// sectionExtents returns the flat sections of code, where a section with a
// citation needed template absorbs the deeper subsections that follow it.
func (e *Extractor) sectionExtents(code *wikitext.Wikicode) []*wikitext.Wikicode {
	flat := code.Sections(true, true, true)
	var out []*wikitext.Wikicode
	for i := 0; i < len(flat); {
		sec := flat[i]
		level := headingLevel(sec)
		i++
		if e.hasCitationNeeded(sec) {
			for i < len(flat) && headingLevel(flat[i]) > level {
				sec.Nodes = append(sec.Nodes, flat[i].Nodes...)
				i++
			}
		}
		out = append(out, sec)
	}
	return out
}

func headingLevel(sec *wikitext.Wikicode) int {
	if h, ok := sec.Get(0).(*wikitext.Heading); ok {
		return h.Level
	}
	return math.MaxInt
}

func sectionTitle(sec *wikitext.Wikicode) string {
	h, ok := sec.Get(0).(*wikitext.Heading)
	if !ok {
		return ""
	}
	title := h.Title.StripCode(wikitext.DefaultStripper{})
	return strings.TrimSpace(styleRegexp.ReplaceAllString(title, ""))
}
