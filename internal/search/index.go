// Package search is a small in-memory inverted index over category titles.
// It backs category search when a plain substring match finds nothing, so
// that "tower" finds "Towers in Paris" and "museums" finds "Art museum".
package search

import (
	"math"
	"sort"
	"sync"

	"github.com/deidaraiorek/snippethunt/internal/storage"
)

type posting struct {
	doc   int
	tfidf float64
}

// Index maps stemmed terms to the categories whose titles contain them.
// It is safe for concurrent use; Rebuild swaps the whole index at once.
type Index struct {
	tokenizer *Tokenizer
	stemmer   *Stemmer

	mu       sync.RWMutex
	docs     []storage.CategoryCount
	postings map[string][]posting
}

func NewIndex(lang string) *Index {
	return &Index{
		tokenizer: NewTokenizer(lang),
		stemmer:   NewStemmer(lang),
		postings:  map[string][]posting{},
	}
}

// Process tokenizes and stems text.
func (ix *Index) Process(text string) []string {
	return ix.stemmer.StemTokens(ix.tokenizer.Tokenize(text))
}

// Rebuild replaces the indexed categories.
func (ix *Index) Rebuild(categories []storage.CategoryCount) {
	docs := append([]storage.CategoryCount(nil), categories...)

	termFreqs := make([]map[string]int, len(docs))
	docLengths := make([]int, len(docs))
	docFreq := map[string]int{}
	for i, c := range docs {
		tf := map[string]int{}
		for _, term := range ix.Process(c.Title) {
			tf[term]++
			docLengths[i]++
		}
		for term := range tf {
			docFreq[term]++
		}
		termFreqs[i] = tf
	}

	total := float64(len(docs))
	postings := make(map[string][]posting, len(docFreq))
	for i, tf := range termFreqs {
		for term, freq := range tf {
			idf := math.Log(1 + total/float64(docFreq[term]))
			postings[term] = append(postings[term], posting{
				doc:   i,
				tfidf: float64(freq) / float64(docLengths[i]) * idf,
			})
		}
	}

	ix.mu.Lock()
	ix.docs = docs
	ix.postings = postings
	ix.mu.Unlock()
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns up to limit categories matching every term of query,
// best first. Ties go to the category with more articles.
func (ix *Index) Search(query string, limit int) []storage.CategoryCount {
	terms := ix.Process(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := map[int]float64{}
	matched := map[int]int{}
	seen := map[string]bool{}
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		for _, p := range ix.postings[term] {
			scores[p.doc] += p.tfidf
			matched[p.doc]++
		}
	}

	hits := make([]int, 0, len(scores))
	for doc, n := range matched {
		if n == len(seen) {
			hits = append(hits, doc)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		if ix.docs[a].Articles != ix.docs[b].Articles {
			return ix.docs[a].Articles > ix.docs[b].Articles
		}
		return ix.docs[a].Title < ix.docs[b].Title
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]storage.CategoryCount, len(hits))
	for i, doc := range hits {
		out[i] = ix.docs[doc]
	}
	return out
}
