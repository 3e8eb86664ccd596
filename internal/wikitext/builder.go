package wikitext

import "fmt"

type builder struct {
	toks []Token
	pos  int
}

// Build assembles a tree from a token stream.
func Build(tokens []Token) (*Wikicode, error) {
	b := &builder{toks: tokens}
	code, stop, err := b.parse()
	if err != nil {
		return nil, err
	}
	if stop != nil {
		return nil, fmt.Errorf("%w: unexpected %s", ErrUnbalanced, stop.Kind)
	}
	return code, nil
}

// Parse builds a tree from text, degrading broken markup to text.
func Parse(text string) *Wikicode {
	toks, _ := Tokenize(text, false)
	code, err := Build(toks)
	if err != nil {
		// Lenient tokens are always balanced.
		return &Wikicode{Nodes: []Node{&TextNode{Value: text}}}
	}
	return code
}

// parse consumes tokens until one of stops (returned) or the end of input.
func (b *builder) parse(stops ...TokenKind) (*Wikicode, *Token, error) {
	code := &Wikicode{}
	for b.pos < len(b.toks) {
		tok := b.toks[b.pos]
		for _, k := range stops {
			if tok.Kind == k {
				b.pos++
				return code, &tok, nil
			}
		}
		b.pos++

		switch tok.Kind {
		case Text:
			code.appendText(tok.Raw)
		case Comment:
			code.Nodes = append(code.Nodes, &CommentNode{Raw: tok.Raw})
		case TemplateOpen:
			n, err := b.template()
			if err != nil {
				return nil, nil, err
			}
			code.Nodes = append(code.Nodes, n)
		case WikilinkOpen:
			n, err := b.wikilink()
			if err != nil {
				return nil, nil, err
			}
			code.Nodes = append(code.Nodes, n)
		case ExternalLinkOpen:
			n, err := b.externalLink()
			if err != nil {
				return nil, nil, err
			}
			code.Nodes = append(code.Nodes, n)
		case HeadingStart:
			n, err := b.heading(tok)
			if err != nil {
				return nil, nil, err
			}
			code.Nodes = append(code.Nodes, n)
		case TagOpen:
			n, err := b.tag(tok)
			if err != nil {
				return nil, nil, err
			}
			code.Nodes = append(code.Nodes, n)
		default:
			if len(stops) == 0 {
				return code, &tok, nil
			}
			return nil, nil, fmt.Errorf("%w: unexpected %s", ErrUnbalanced, tok.Kind)
		}
	}
	if len(stops) > 0 {
		return nil, nil, fmt.Errorf("%w: expected %s before end of input", ErrUnbalanced, stops[len(stops)-1])
	}
	return code, nil, nil
}

func (b *builder) template() (*Template, error) {
	name, stop, err := b.parse(TemplateParamSeparator, TemplateClose)
	if err != nil {
		return nil, err
	}
	tpl := &Template{Name: name}
	positional := 0
	for stop.Kind == TemplateParamSeparator {
		var value *Wikicode
		value, stop, err = b.parse(TemplateParamEquals, TemplateParamSeparator, TemplateClose)
		if err != nil {
			return nil, err
		}
		if stop.Kind == TemplateParamEquals {
			key := value
			value, stop, err = b.parse(TemplateParamSeparator, TemplateClose)
			if err != nil {
				return nil, err
			}
			tpl.Params = append(tpl.Params, &Parameter{Name: key, Value: value, ShowKey: true})
			continue
		}
		positional++
		tpl.Params = append(tpl.Params, &Parameter{Name: positionalName(positional), Value: value})
	}
	return tpl, nil
}

func (b *builder) wikilink() (*Wikilink, error) {
	title, stop, err := b.parse(WikilinkSeparator, WikilinkClose)
	if err != nil {
		return nil, err
	}
	link := &Wikilink{Title: title}
	if stop.Kind == WikilinkSeparator {
		link.Text, _, err = b.parse(WikilinkClose)
		if err != nil {
			return nil, err
		}
	}
	return link, nil
}

func (b *builder) externalLink() (*ExternalLink, error) {
	url, stop, err := b.parse(ExternalLinkSeparator, ExternalLinkClose)
	if err != nil {
		return nil, err
	}
	link := &ExternalLink{URL: url, Brackets: true}
	if stop.Kind == ExternalLinkSeparator {
		link.Title, _, err = b.parse(ExternalLinkClose)
		if err != nil {
			return nil, err
		}
	}
	return link, nil
}

func (b *builder) heading(open Token) (*Heading, error) {
	title, stop, err := b.parse(HeadingEnd)
	if err != nil {
		return nil, err
	}
	return &Heading{Title: title, Level: open.Level, Trail: stop.Raw[open.Level:]}, nil
}

func (b *builder) tag(open Token) (*Tag, error) {
	attrs, pad := parseAttrs(open.Attrs)
	t := &Tag{
		Name:        open.Name,
		TagName:     open.TagName,
		Attrs:       attrs,
		PadEnd:      pad,
		SelfClosing: open.SelfClosing,
		Void:        open.Void && !open.SelfClosing,
	}
	if t.SelfClosing || t.Void {
		return t, nil
	}
	contents, stop, err := b.parse(TagClose)
	if err != nil {
		return nil, err
	}
	if stop.Name != open.Name {
		return nil, fmt.Errorf("%w: </%s> closes <%s>", ErrUnbalanced, stop.Name, open.Name)
	}
	t.Contents = contents
	t.CloseRaw = stop.Raw
	return t, nil
}
