package wikitext

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnbalanced is returned by strict tokenizing and by Build when markup
// constructs are not properly closed.
var ErrUnbalanced = errors.New("wikitext: unbalanced markup")

var (
	tagOpenRegexp  = regexp.MustCompile(`^<([A-Za-z][A-Za-z0-9]*)([^<>]*?)(/?)>`)
	tagCloseRegexp = regexp.MustCompile(`^</([A-Za-z][A-Za-z0-9]*)\s*>`)
)

var knownTags = map[string]bool{
	"abbr": true, "b": true, "bdi": true, "bdo": true, "big": true,
	"blockquote": true, "br": true, "caption": true, "center": true,
	"cite": true, "code": true, "data": true, "dd": true, "del": true,
	"dfn": true, "div": true, "dl": true, "dt": true, "em": true,
	"font": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "hr": true, "i": true, "ins": true,
	"kbd": true, "li": true, "mark": true, "ol": true, "p": true,
	"q": true, "rb": true, "rp": true, "rt": true, "rtc": true,
	"ruby": true, "s": true, "samp": true, "small": true, "span": true,
	"strike": true, "strong": true, "sub": true, "sup": true,
	"table": true, "td": true, "th": true, "time": true, "tr": true,
	"tt": true, "u": true, "ul": true, "var": true, "wbr": true,

	"ref": true, "references": true, "poem": true, "includeonly": true,
	"noinclude": true, "onlyinclude": true, "imagemap": true,
	"inputbox": true, "categorytree": true, "section": true,
	"mapframe": true, "maplink": true, "hiero": true, "indicator": true,
	"nowiki": true, "pre": true, "math": true, "syntaxhighlight": true,
	"source": true, "gallery": true, "timeline": true, "score": true,
	"templatedata": true, "graph": true, "chem": true, "ce": true,
}

// Tags whose contents are never parsed as markup.
var rawContentTags = map[string]bool{
	"nowiki": true, "pre": true, "math": true, "syntaxhighlight": true,
	"source": true, "gallery": true, "timeline": true, "score": true,
	"templatedata": true, "graph": true, "chem": true, "ce": true,
}

var voidTags = map[string]bool{"br": true, "hr": true, "wbr": true}

type frameKind int

const (
	frameTemplate frameKind = iota
	frameWikilink
	frameExternalLink
	frameTag
)

type frame struct {
	kind   frameKind
	open   int   // index of the opening token
	seps   []int // indexes of separator tokens owned by this frame
	name   string
	sawSep bool
	sawEq  bool
}

type tokenizer struct {
	src      string
	pos      int
	strict   bool
	headings bool

	toks  []Token
	stack []*frame
	text  strings.Builder
}

// Tokenize splits text into tokens. In strict mode unbalanced constructs
// fail with ErrUnbalanced; otherwise they degrade to Text tokens.
func Tokenize(text string, strict bool) ([]Token, error) {
	t := &tokenizer{src: text, strict: strict, headings: true}
	if err := t.run(); err != nil {
		return nil, err
	}
	return t.toks, nil
}

func (t *tokenizer) run() error {
	for t.pos < len(t.src) {
		s := t.src[t.pos:]
		var err error

		switch {
		case strings.HasPrefix(s, "<!--"):
			err = t.comment(s)
		case s[0] == '=' && t.headings && len(t.stack) == 0 && t.atLineStart():
			if !t.heading() {
				t.addText("=")
			}
		case strings.HasPrefix(s, "{{{"):
			t.addText("{{{")
		case strings.HasPrefix(s, "{{"):
			t.push(frameTemplate, Token{Kind: TemplateOpen, Raw: "{{"}, "")
		case strings.HasPrefix(s, "}}"):
			if i := t.find(frameTemplate, ""); i >= 0 {
				err = t.close(i, Token{Kind: TemplateClose, Raw: "}}"})
			} else {
				t.addText("}}")
			}
		case strings.HasPrefix(s, "[["):
			t.push(frameWikilink, Token{Kind: WikilinkOpen, Raw: "[["}, "")
		case s[0] == '[' && isURLStart(s[1:]):
			t.push(frameExternalLink, Token{Kind: ExternalLinkOpen, Raw: "["}, "")
		case s[0] == ']':
			err = t.closeBracket(s)
		case s[0] == '|':
			t.pipe()
		case s[0] == '=':
			t.equals()
		case s[0] == ' ':
			t.space()
		case s[0] == '<':
			err = t.tag(s)
		default:
			t.plain(s)
		}
		if err != nil {
			return err
		}
	}
	t.flush()

	if len(t.stack) > 0 {
		if t.strict {
			return fmt.Errorf("%w: %d unclosed construct(s)", ErrUnbalanced, len(t.stack))
		}
		for len(t.stack) > 0 {
			t.revert(t.stack[len(t.stack)-1])
			t.stack = t.stack[:len(t.stack)-1]
		}
	}
	return nil
}

func (t *tokenizer) atLineStart() bool {
	return t.pos == 0 || t.src[t.pos-1] == '\n'
}

func (t *tokenizer) plain(s string) {
	n := strings.IndexAny(s[1:], "{}[]|=< \n")
	if n < 0 {
		n = len(s) - 1
	}
	t.addText(s[:n+1])
}

func (t *tokenizer) addText(s string) {
	t.text.WriteString(s)
	t.pos += len(s)
}

func (t *tokenizer) flush() {
	if t.text.Len() == 0 {
		return
	}
	t.toks = append(t.toks, Token{Kind: Text, Raw: t.text.String()})
	t.text.Reset()
}

func (t *tokenizer) emit(tok Token) int {
	t.flush()
	t.toks = append(t.toks, tok)
	t.pos += len(tok.Raw)
	return len(t.toks) - 1
}

func (t *tokenizer) top() *frame {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

func (t *tokenizer) push(kind frameKind, tok Token, name string) {
	idx := t.emit(tok)
	t.stack = append(t.stack, &frame{kind: kind, open: idx, name: name})
}

// find returns the stack index of the innermost frame of kind (and tag
// name, for tags), or -1.
func (t *tokenizer) find(kind frameKind, name string) int {
	for i := len(t.stack) - 1; i >= 0; i-- {
		f := t.stack[i]
		if f.kind == kind && (kind != frameTag || f.name == name) {
			return i
		}
	}
	return -1
}

// close closes the frame at stack index i, unwinding the frames opened
// after it.
func (t *tokenizer) close(i int, tok Token) error {
	if i != len(t.stack)-1 && t.strict {
		return fmt.Errorf("%w: %q closes across an open construct", ErrUnbalanced, tok.Raw)
	}
	for len(t.stack)-1 > i {
		t.revert(t.top())
		t.stack = t.stack[:len(t.stack)-1]
	}
	t.stack = t.stack[:i]
	t.emit(tok)
	return nil
}

func (t *tokenizer) revert(f *frame) {
	t.toks[f.open] = Token{Kind: Text, Raw: t.toks[f.open].Raw}
	for _, s := range f.seps {
		t.toks[s] = Token{Kind: Text, Raw: t.toks[s].Raw}
	}
}

func (t *tokenizer) closeBracket(s string) error {
	if f := t.top(); f != nil && f.kind == frameExternalLink {
		return t.close(len(t.stack)-1, Token{Kind: ExternalLinkClose, Raw: "]"})
	}
	if strings.HasPrefix(s, "]]") {
		if i := t.find(frameWikilink, ""); i >= 0 {
			return t.close(i, Token{Kind: WikilinkClose, Raw: "]]"})
		}
	}
	if i := t.find(frameExternalLink, ""); i >= 0 {
		return t.close(i, Token{Kind: ExternalLinkClose, Raw: "]"})
	}
	t.addText("]")
	return nil
}

func (t *tokenizer) pipe() {
	f := t.top()
	switch {
	case f != nil && f.kind == frameTemplate:
		f.seps = append(f.seps, t.emit(Token{Kind: TemplateParamSeparator, Raw: "|"}))
		f.sawSep = true
		f.sawEq = false
	case f != nil && f.kind == frameWikilink && !f.sawSep:
		f.seps = append(f.seps, t.emit(Token{Kind: WikilinkSeparator, Raw: "|"}))
		f.sawSep = true
	default:
		t.addText("|")
	}
}

func (t *tokenizer) equals() {
	f := t.top()
	if f != nil && f.kind == frameTemplate && f.sawSep && !f.sawEq {
		f.seps = append(f.seps, t.emit(Token{Kind: TemplateParamEquals, Raw: "="}))
		f.sawEq = true
		return
	}
	t.addText("=")
}

func (t *tokenizer) space() {
	f := t.top()
	if f != nil && f.kind == frameExternalLink && !f.sawSep {
		f.seps = append(f.seps, t.emit(Token{Kind: ExternalLinkSeparator, Raw: " "}))
		f.sawSep = true
		return
	}
	t.addText(" ")
}

func (t *tokenizer) comment(s string) error {
	end := strings.Index(s[4:], "-->")
	if end < 0 {
		if t.strict {
			return fmt.Errorf("%w: unterminated comment", ErrUnbalanced)
		}
		t.addText("<!--")
		return nil
	}
	t.emit(Token{Kind: Comment, Raw: s[:end+7]})
	return nil
}

func (t *tokenizer) heading() bool {
	line := t.src[t.pos:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	trimmed := strings.TrimRight(line, " \t")
	lead := len(trimmed) - len(strings.TrimLeft(trimmed, "="))
	trail := len(trimmed) - len(strings.TrimRight(trimmed, "="))
	if lead == len(trimmed) || trail == 0 {
		return false
	}
	level := min(lead, trail, 6)
	title := trimmed[level : len(trimmed)-level]

	sub := &tokenizer{src: title, strict: t.strict}
	if err := sub.run(); err != nil {
		// A heading with broken markup is left to the caller as text.
		return false
	}

	marks := strings.Repeat("=", level)
	t.emit(Token{Kind: HeadingStart, Raw: marks, Level: level})
	t.toks = append(t.toks, sub.toks...)
	t.pos += len(title)
	t.emit(Token{Kind: HeadingEnd, Raw: marks + line[len(trimmed):]})
	return true
}

func (t *tokenizer) tag(s string) error {
	if m := tagCloseRegexp.FindStringSubmatch(s); m != nil {
		name := strings.ToLower(m[1])
		if i := t.find(frameTag, name); i >= 0 {
			return t.close(i, Token{Kind: TagClose, Raw: m[0], Name: name, TagName: m[1]})
		}
		t.addText(m[0])
		return nil
	}

	m := tagOpenRegexp.FindStringSubmatch(s)
	if m == nil || !knownTags[strings.ToLower(m[1])] {
		t.addText("<")
		return nil
	}
	name := strings.ToLower(m[1])
	open := Token{
		Kind:        TagOpen,
		Raw:         m[0],
		Name:        name,
		TagName:     m[1],
		Attrs:       m[2],
		SelfClosing: m[3] == "/",
		Void:        voidTags[name],
	}
	if open.SelfClosing || open.Void {
		t.emit(open)
		return nil
	}

	if rawContentTags[name] {
		rest := s[len(m[0]):]
		closeRe := regexp.MustCompile(`(?i)</` + regexp.QuoteMeta(name) + `\s*>`)
		loc := closeRe.FindStringIndex(rest)
		if loc == nil {
			if t.strict {
				return fmt.Errorf("%w: unterminated <%s>", ErrUnbalanced, name)
			}
			t.addText(m[0])
			return nil
		}
		t.emit(open)
		if loc[0] > 0 {
			t.addText(rest[:loc[0]])
		}
		closeRaw := rest[loc[0]:loc[1]]
		t.emit(Token{Kind: TagClose, Raw: closeRaw, Name: name, TagName: closeRaw[2 : 2+len(name)]})
		return nil
	}

	t.push(frameTag, open, name)
	return nil
}

func isURLStart(s string) bool {
	for _, p := range []string{"http://", "https://", "//", "ftp://", "mailto:"} {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return true
		}
	}
	return false
}
