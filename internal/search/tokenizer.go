package search

import (
	"regexp"
	"strings"
	"unicode"
)

var wordRegexp = regexp.MustCompile(`[\p{L}\p{N}]+`)

type Tokenizer struct {
	StopWords map[string]bool
	minLength int
	maxLength int
}

// NewTokenizer returns a tokenizer dropping the stop words of lang. Only
// English has a stop word list; other languages keep every word.
func NewTokenizer(lang string) *Tokenizer {
	stop := map[string]bool{}
	if lang == "en" {
		stop = englishStopWords()
	}
	return &Tokenizer{
		StopWords: stop,
		minLength: 2,
		maxLength: 50,
	}
}

func (t *Tokenizer) Tokenize(text string) []string {
	words := wordRegexp.FindAllString(t.normalize(text), -1)

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if t.StopWords[word] {
			continue
		}
		if n := len([]rune(word)); n < t.minLength || n > t.maxLength {
			continue
		}
		if !t.IsValidToken(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func (t *Tokenizer) normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", " ")
	text = strings.ReplaceAll(text, "_", " ")
	return text
}

// IsValidToken rejects tokens that are mostly digits. Years are kept, since
// categories such as "1998 in film" are commonly searched by year.
func (t *Tokenizer) IsValidToken(word string) bool {
	alpha, digit := 0, 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			alpha++
		} else if unicode.IsDigit(r) {
			digit++
		}
	}
	if alpha == 0 {
		return digit == 4
	}
	return digit <= alpha
}

func englishStopWords() map[string]bool {
	words := []string{
		// Articles
		"a", "an", "the",

		// Prepositions
		"of", "at", "by", "for", "with", "about", "against", "between",
		"into", "through", "during", "before", "after", "above", "below",
		"to", "from", "up", "down", "in", "out", "on", "off", "over", "under",

		// Conjunctions
		"and", "or", "but", "if", "while", "as", "than", "nor",

		// Common verbs
		"is", "are", "was", "were", "be", "been",

		// Other common words
		"this", "that", "these", "those", "which", "who", "other", "some",
	}

	stopWords := make(map[string]bool, len(words))
	for _, word := range words {
		stopWords[word] = true
	}
	return stopWords
}
