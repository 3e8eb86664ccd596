package htmlutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/deidaraiorek/snippethunt/internal/htmlutil"
)

func parseBody(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body>" + s + "</body></html>"))
	require.NoError(t, err)
	var body *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil && body == nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	require.NotNil(t, body)
	return body
}

func first(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := first(c, tag); f != nil {
			return f
		}
	}
	return nil
}

func inner(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(htmlutil.Render(c))
	}
	return b.String()
}

func TestRemoveElement_KeepsTail(t *testing.T) {
	body := parseBody(t, "<p>before <span>x</span> after</p>")
	p := first(body, "p")
	htmlutil.RemoveElement(first(p, "span"))
	assert.Equal(t, "before  after", inner(p))
	require.NotNil(t, p.FirstChild)
	assert.Nil(t, p.FirstChild.NextSibling)
}

func TestRemoveElement_FirstChild(t *testing.T) {
	body := parseBody(t, "<p><span>x</span> tail</p>")
	p := first(body, "p")
	htmlutil.RemoveElement(first(p, "span"))
	assert.Equal(t, " tail", inner(p))
}

func TestStripSpaceBefore(t *testing.T) {
	body := parseBody(t, "<p>text  <b>m</b> after</p>")
	p := first(body, "p")
	htmlutil.StripSpaceBefore(first(p, "b"))
	assert.Equal(t, "text<b>m</b> after", inner(p))
}

func TestStripSpaceBefore_AcrossEmptyText(t *testing.T) {
	body := parseBody(t, "<p>text <b>m</b></p>")
	p := first(body, "p")
	b := first(p, "b")
	p.InsertBefore(&html.Node{Type: html.TextNode, Data: "  "}, b)
	htmlutil.StripSpaceBefore(b)
	assert.Equal(t, "text<b>m</b>", inner(p))
}

func TestUnwrapAndText(t *testing.T) {
	body := parseBody(t, `<p>a <a href="/x">link</a> b</p>`)
	p := first(body, "p")
	htmlutil.Unwrap(first(p, "a"))
	htmlutil.MergeText(p)
	assert.Equal(t, "a link b", inner(p))
	assert.Equal(t, "a link b", htmlutil.TextContent(p))
	assert.Nil(t, p.FirstChild.NextSibling)
}

func TestAttrHelpers(t *testing.T) {
	body := parseBody(t, `<span class="a b" id="x">t</span>`)
	s := first(body, "span")
	assert.True(t, htmlutil.HasClass(s, "b"))
	htmlutil.SetAttr(s, "class", "c")
	htmlutil.RemoveAttr(s, "id")
	assert.Equal(t, `<span class="c">t</span>`, htmlutil.Render(s))

	c := htmlutil.Clone(s)
	assert.Nil(t, c.Parent)
	assert.Equal(t, htmlutil.Render(s), htmlutil.Render(c))
	assert.True(t, htmlutil.IsWhitespace(" \n\t"))
}
