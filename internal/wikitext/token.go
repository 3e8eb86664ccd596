// Package wikitext is a small MediaWiki markup tokenizer and tree. It
// understands templates, wikilinks, bracketed external links, headings,
// HTML-like tags and comments, which is what snippet extraction needs.
// Style markup ('' and ''') is left as plain text.
package wikitext

// TokenKind identifies a token produced by Tokenize.
type TokenKind int

const (
	Text TokenKind = iota
	Comment
	TemplateOpen
	TemplateParamSeparator
	TemplateParamEquals
	TemplateClose
	WikilinkOpen
	WikilinkSeparator
	WikilinkClose
	ExternalLinkOpen
	ExternalLinkSeparator
	ExternalLinkClose
	HeadingStart
	HeadingEnd
	TagOpen
	TagClose
)

var kindNames = [...]string{
	Text:                   "Text",
	Comment:                "Comment",
	TemplateOpen:           "TemplateOpen",
	TemplateParamSeparator: "TemplateParamSeparator",
	TemplateParamEquals:    "TemplateParamEquals",
	TemplateClose:          "TemplateClose",
	WikilinkOpen:           "WikilinkOpen",
	WikilinkSeparator:      "WikilinkSeparator",
	WikilinkClose:          "WikilinkClose",
	ExternalLinkOpen:       "ExternalLinkOpen",
	ExternalLinkSeparator:  "ExternalLinkSeparator",
	ExternalLinkClose:      "ExternalLinkClose",
	HeadingStart:           "HeadingStart",
	HeadingEnd:             "HeadingEnd",
	TagOpen:                "TagOpen",
	TagClose:               "TagClose",
}

func (k TokenKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "TokenKind(?)"
}

// Token is a lexical unit. Raw always holds the exact source text, so
// concatenating the Raw of every token reproduces the input.
type Token struct {
	Kind TokenKind
	Raw  string

	Level int // HeadingStart

	// TagOpen / TagClose
	Name        string // lower-cased tag name
	TagName     string // tag name as written
	Attrs       string // raw attribute text, including leading space
	SelfClosing bool   // written as <name/>
	Void        bool   // has no closing tag (br, hr, wbr)
}
