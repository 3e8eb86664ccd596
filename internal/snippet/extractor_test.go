package snippet_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
	"github.com/deidaraiorek/snippethunt/internal/wikitext"
)

const cnExpansion = "^[citation_needed]"

var expectedCN = `<span class="` + snippet.CNMarkerClass + `">` + cnExpansion + `</span>`

// marker is what the wiki parser returns for the marker of template 0-0.
var marker = `<span class="` + snippet.CNMarkerClass + `" data-id="0-0">` + cnExpansion + `</span>`

type fakeRenderer struct {
	html  string
	err   error
	calls []string
}

func (f *fakeRenderer) Render(_ context.Context, sec *wikitext.Wikicode) (string, error) {
	f.calls = append(f.calls, sec.String())
	return f.html, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		LangCode:                   "en",
		Extract:                    "snippet",
		SnippetMinSize:             0,
		SnippetMaxSize:             5000,
		HTMLSnippet:                true,
		CitationNeededTemplates:    []string{"cn"},
		CitationNeededTemplateName: "Citation needed",
		HTMLCSSSelectorsToStrip:    []string{".noprint"},
		WikilinkPrefixBlacklist:    []string{"File:"},
	}
}

func extract(t *testing.T, cfg *config.Config, html, text string) ([]snippet.Snippet, *fakeRenderer) {
	t.Helper()
	r := &fakeRenderer{html: strings.ReplaceAll(html, "{cn}", marker)}
	ex, err := snippet.New(cfg, nil, zap.NewNop(), snippet.WithRenderer(r))
	require.NoError(t, err)
	snippets, err := ex.Extract(context.Background(), text)
	require.NoError(t, err)
	return snippets, r
}

func htmls(snippets []snippet.Snippet) []string {
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = s.HTML
	}
	return out
}

func TestNew_NoTemplates(t *testing.T) {
	cfg := testConfig()
	cfg.CitationNeededTemplates = nil
	_, err := snippet.New(cfg, nil, zap.NewNop(), snippet.WithRenderer(&fakeRenderer{}))
	assert.True(t, errors.Is(err, snippet.ErrNoTemplates))
}

func TestNew_InvalidStripSelector(t *testing.T) {
	cfg := testConfig()
	cfg.HTMLCSSSelectorsToStrip = []string{"div[", ".noprint"}
	_, err := snippet.New(cfg, nil, zap.NewNop(), snippet.WithRenderer(&fakeRenderer{}))
	assert.ErrorContains(t, err, "div[")
}

func TestExtract_SimpleSnippetFromList(t *testing.T) {
	snippets, _ := extract(t, testConfig(), `
		<p>The following is a list of elements:</p>
		<ul>
			<li>Element 1</li>
			<li>Element 2</li>
			<li>Element 3{cn}</li>
			<li>Element 4</li>
			<li>Element 5</li>
		</ul>`, "{{ cn }}")
	require.Len(t, snippets, 1)

	s := snippets[0].HTML
	assert.Contains(t, s, "<p>The following")
	assert.NotContains(t, s, "<li>Element 1")
	assert.Contains(t, s, "<li>Element 2")
	assert.Contains(t, s, "<li>Element 3"+expectedCN+"</li>")
	assert.Contains(t, s, "<li>Element 4")
	assert.NotContains(t, s, "<li>Element 5")
}

func TestExtract_MultipleSnippetsFromList(t *testing.T) {
	snippets, _ := extract(t, testConfig(), `
		<p>The following is a list of elements:</p>
		<ul>
			<li>Element 1</li>
			<li>Element 2</li>
			<li>Element 3{cn}</li>
			<li>Element 4</li>
			<li>Element 5{cn}</li>
		</ul>`, "{{ cn }}")
	require.Len(t, snippets, 2)

	assert.Contains(t, snippets[0].HTML, "<p>The following")
	assert.Contains(t, snippets[0].HTML, "<li>Element 3"+expectedCN+"</li>")
	assert.NotContains(t, snippets[0].HTML, "<li>Element 5"+expectedCN+"</li>")

	assert.Contains(t, snippets[1].HTML, "<p>The following")
	assert.Contains(t, snippets[1].HTML, "<li>Element 5"+expectedCN+"</li>")
	assert.NotContains(t, snippets[1].HTML, "<li>Element 3"+expectedCN+"</li>")
}

func TestExtract_NoNestedLists(t *testing.T) {
	snippets, _ := extract(t, testConfig(), `
		<p>The following is a list of elements:</p>
		<ul>
			<li>Element 1</li>
			<li>Element 2</li>
			<li>Element 3{cn}</li>
			<li>Element 4
				<ol><li>Element 4.1</li></ol>
			</li>
			<li>Element 5</li>
		</ul>`, "{{ cn }}")
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0].HTML, "<li>Element 2")
	assert.Contains(t, snippets[0].HTML, "<li>Element 3")
	assert.NotContains(t, snippets[0].HTML, "<li>Element 4")
}

func TestExtract_RemoveSpaceBeforeMarker(t *testing.T) {
	snippets, _ := extract(t, testConfig(),
		"<p>This is some HTML  {cn} with space.</p>", "{{ cn }}")
	require.Len(t, snippets, 1)
	assert.Equal(t,
		`<div class="ch-snippet"><p>This is some HTML`+expectedCN+` with space.</p></div>`,
		snippets[0].HTML)
}

func TestExtract_DropRefGroups(t *testing.T) {
	_, r := extract(t, testConfig(), "<p>x</p>", `{{ cn }}<ref group="g"/>`)
	require.Len(t, r.calls, 1)
	assert.NotContains(t, r.calls[0], "group")
	assert.Contains(t, r.calls[0], `data-id="0-0">{{ cn }}</span>`)
}

func TestExtract_StripSelectorsOutsideMarkers(t *testing.T) {
	cfg := testConfig()
	r := &fakeRenderer{html: `<p><span class="noprint">Non-important</span> Stuff ` +
		`<span class="` + snippet.CNMarkerClass + `" data-id="0-0"><span class="noprint">Important stuff!</span></span></p>`}
	ex, err := snippet.New(cfg, nil, zap.NewNop(), snippet.WithRenderer(r))
	require.NoError(t, err)
	snippets, err := ex.Extract(context.Background(), "{{ cn }}")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.NotContains(t, snippets[0].HTML, "Non-important")
	assert.Contains(t, snippets[0].HTML, "Important stuff!")
	assert.NotContains(t, snippets[0].HTML, "noprint")
}

func TestExtract_StripCompoundSelectors(t *testing.T) {
	cfg := testConfig()
	cfg.HTMLCSSSelectorsToStrip = []string{"div.hatnote", "sup.reference, span.noprint"}
	r := &fakeRenderer{html: `<div class="hatnote">See also</div>` +
		`<p>Stuff<sup class="reference">[1]</sup> and <span class="noprint">hidden</span> more{cn}</p>`}
	r.html = strings.ReplaceAll(r.html, "{cn}", marker)
	ex, err := snippet.New(cfg, nil, zap.NewNop(), snippet.WithRenderer(r))
	require.NoError(t, err)
	snippets, err := ex.Extract(context.Background(), "{{ cn }}")
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.NotContains(t, snippets[0].HTML, "See also")
	assert.NotContains(t, snippets[0].HTML, "[1]")
	assert.NotContains(t, snippets[0].HTML, "hidden")
	assert.Contains(t, snippets[0].HTML, "Stuff")
}

func TestExtract_StripAttributesAndLinks(t *testing.T) {
	snippets, _ := extract(t, testConfig(),
		`<p id="x"><span class="theclass" style="color:red">Stuff</span> and <a href="/wiki/Y">a link</a>{cn}</p>`,
		"{{cn}}")
	require.Len(t, snippets, 1)
	assert.Equal(t,
		`<div class="ch-snippet"><p><span>Stuff</span> and a link`+expectedCN+`</p></div>`,
		snippets[0].HTML)
}

func TestExtract_SectionMode(t *testing.T) {
	cfg := testConfig()
	cfg.Extract = "section"
	snippets, _ := extract(t, cfg, "<p>{cn}<p><p>Full</p><p>Section</p>", "{{cn}}\n\nFull\n\nSection")
	require.Len(t, snippets, 1)
	assert.Equal(t, `<div class="ch-snippet"><p>Full</p><p>Section</p></div>`, snippets[0].HTML)
}

func TestExtract_SectionModeAbsorbsSubsections(t *testing.T) {
	cfg := testConfig()
	cfg.Extract = "section"
	_, r := extract(t, cfg, "<p>Body</p>",
		"== A ==\n{{cn}}\n=== A1 ===\nsub\n== B ==\nother\n=== B1 ===\n{{cn}}\n")
	require.Len(t, r.calls, 2)
	assert.Contains(t, r.calls[0], "=== A1 ===")
	assert.NotContains(t, r.calls[0], "== B ==")
	assert.True(t, strings.HasPrefix(r.calls[1], "=== B1 ==="))
}

func TestExtract_NoWikicodeInSectionTitles(t *testing.T) {
	snippets, _ := extract(t, testConfig(),
		"<p>Irrelevant HTML content{cn}</p>",
		"== Section title ''with Wikicode'' == \n\nIrrelevant content{{cn}}")
	require.Len(t, snippets, 1)
	assert.Equal(t, "Section title with Wikicode", snippets[0].Section)
}

func TestExtract_MultipleSnippetsInSection(t *testing.T) {
	snippets, _ := extract(t, testConfig(), `<p>This needs a reference{cn}</p>`+
		`<p>So does this{cn}</p>
		<p>The following is a list of elements:</p>
		<ul>
			<li>Element 1</li>
			<li>Element 2{cn}</li>
			<li>Element 3</li>
		</ul>`, "{{cn}}")
	require.Len(t, snippets, 3)
	assert.Equal(t, `<div class="ch-snippet"><p>This needs a reference`+expectedCN+`</p></div>`, snippets[0].HTML)
	assert.Equal(t, `<div class="ch-snippet"><p>So does this`+expectedCN+`</p></div>`, snippets[1].HTML)
	assert.Contains(t, snippets[2].HTML, "Element 2"+expectedCN)
}

func TestExtract_NoDuplicateSnippet(t *testing.T) {
	snippets, _ := extract(t, testConfig(),
		"<p>This{cn} needs a reference{cn}</p>", "This{{cn}} needs a reference{{cn}}")
	assert.Equal(t, []string{
		`<div class="ch-snippet"><p>This` + expectedCN + ` needs a reference` + expectedCN + `</p></div>`,
	}, htmls(snippets))
}

func TestExtract_DateEnglish(t *testing.T) {
	snippets, _ := extract(t, testConfig(),
		"<p>Simple{cn} test.</p>", "This{{cn|date=January 2020}} needs a reference{{cn}}")
	require.Len(t, snippets, 1)
	require.Len(t, snippets[0].Dates, 1)
	assert.Equal(t, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), snippets[0].Dates[0])
	d, ok := snippets[0].OldestDate()
	assert.True(t, ok)
	assert.Equal(t, 2020, d.Year())
}

func TestExtract_BadDateIgnored(t *testing.T) {
	snippets, _ := extract(t, testConfig(),
		"<p>Simple{cn} test.</p>", "This{{cn|date=January 3, 2020}} needs a reference{{cn}}")
	require.Len(t, snippets, 1)
	assert.Empty(t, snippets[0].Dates)
}

func TestExtract_DateIgnoredOnOtherWikis(t *testing.T) {
	cfg := testConfig()
	cfg.LangCode = "es"
	snippets, _ := extract(t, cfg,
		"<p>Simple{cn} test.</p>", "This{{cn|date=January 2020}} needs a reference{{cn}}")
	require.Len(t, snippets, 1)
	assert.Empty(t, snippets[0].Dates)
}

func TestExtract_SizeBounds(t *testing.T) {
	cfg := testConfig()
	cfg.SnippetMinSize = 25
	cfg.SnippetMaxSize = 60
	snippets, _ := extract(t, cfg,
		"<p>Short{cn}</p><p>Long enough to be published{cn}</p><p>"+strings.Repeat("way too long ", 5)+"{cn}</p>",
		"{{cn}}")
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0].HTML, "Long enough")
}

func TestExtract_FastParseSkipsSectionsWithoutTemplates(t *testing.T) {
	_, r := extract(t, testConfig(), "<p>x{cn}</p>",
		"Lead text.\n== A ==\nNo templates here.\n== B ==\nNeeds one{{cn}}.\n")
	require.Len(t, r.calls, 1)
	assert.Contains(t, r.calls[0], "== B ==")
	assert.NotContains(t, r.calls[0], "Lead text")
	assert.NotContains(t, r.calls[0], "No templates")
}

func TestExtract_UnbalancedFallsBackToFullParse(t *testing.T) {
	snippets, r := extract(t, testConfig(), "<p>Some text here{cn}</p>", "Some text{{cn}} here {{broken")
	require.Len(t, r.calls, 1)
	assert.Len(t, snippets, 1)
}

func TestExtract_NestedTemplatesDropArticle(t *testing.T) {
	snippets, r := extract(t, testConfig(), "<p>x{cn}</p>", "x {{cn|a {{cn}}}}")
	assert.Empty(t, snippets)
	assert.Empty(t, r.calls)
}

func TestExtract_RenderFailureSkipsSection(t *testing.T) {
	r := &fakeRenderer{err: errors.New("boom")}
	ex, err := snippet.New(testConfig(), nil, zap.NewNop(), snippet.WithRenderer(r))
	require.NoError(t, err)
	snippets, err := ex.Extract(context.Background(), "a{{cn}}\n== B ==\nb{{cn}}")
	require.NoError(t, err)
	assert.Empty(t, snippets)
	assert.Len(t, r.calls, 2)
}

func TestExtract_CancelledContext(t *testing.T) {
	ex, err := snippet.New(testConfig(), nil, zap.NewNop(), snippet.WithRenderer(&fakeRenderer{}))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ex.Extract(ctx, "a{{cn}}")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_RecordsLengths(t *testing.T) {
	stats := snippet.NewStats()
	r := &fakeRenderer{html: "<p>12345" + marker + "</p>"}
	ex, err := snippet.New(testConfig(), nil, zap.NewNop(), snippet.WithRenderer(r), snippet.WithStats(stats))
	require.NoError(t, err)
	_, err = ex.Extract(context.Background(), "{{cn}}")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{5 + len(cnExpansion): 1}, stats.Distribution())
}
