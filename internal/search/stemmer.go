package search

import (
	"github.com/kljensen/snowball"
)

// snowballLanguages maps language codes to the stemmers snowball ships.
var snowballLanguages = map[string]string{
	"en": "english",
	"es": "spanish",
	"fr": "french",
	"hu": "hungarian",
	"nb": "norwegian",
	"no": "norwegian",
	"ru": "russian",
	"sv": "swedish",
}

// Stemmer reduces words to their stem. A Stemmer for a language snowball
// does not know leaves words unchanged.
type Stemmer struct {
	language string
}

func NewStemmer(lang string) *Stemmer {
	return &Stemmer{language: snowballLanguages[lang]}
}

// Enabled reports whether words of this language are stemmed at all.
func (s *Stemmer) Enabled() bool { return s.language != "" }

func (s *Stemmer) Stem(word string) string {
	if !s.Enabled() {
		return word
	}
	if stemmed, err := snowball.Stem(word, s.language, true); err == nil {
		return stemmed
	}
	return word
}

// StemTokens stems tokens in place.
func (s *Stemmer) StemTokens(tokens []string) []string {
	if !s.Enabled() {
		return tokens
	}
	for i, tok := range tokens {
		tokens[i] = s.Stem(tok)
	}
	return tokens
}
