package snippet

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	snippetLength = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snippethunt_snippet_length_chars",
			Help:    "Text length of candidate snippets, before size filtering.",
			Buckets: []float64{50, 100, 200, 300, 400, 500, 600, 800, 1000, 2000, 5000},
		},
	)
	articlesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippethunt_extract_articles_total",
			Help: "Articles run through the extractor, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(snippetLength, articlesExtracted)
}

// Stats is a histogram of candidate snippet lengths. It is safe for
// concurrent use.
type Stats struct {
	mu      sync.Mutex
	lengths map[int]int
}

func NewStats() *Stats {
	return &Stats{lengths: make(map[int]int)}
}

func (s *Stats) Record(length int) {
	snippetLength.Observe(float64(length))
	s.mu.Lock()
	s.lengths[length]++
	s.mu.Unlock()
}

// Merge adds other's samples to s.
func (s *Stats) Merge(other *Stats) {
	lengths := other.Distribution()
	s.mu.Lock()
	defer s.mu.Unlock()
	for l, n := range lengths {
		s.lengths[l] += n
	}
}

// Distribution returns a copy of the samples, keyed by length.
func (s *Stats) Distribution() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, len(s.lengths))
	for l, n := range s.lengths {
		out[l] = n
	}
	return out
}

func (s *Stats) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.lengths {
		total += n
	}
	return total
}

func (s *Stats) Percentile(p float64) int {
	return Percentile(s.Distribution(), p)
}

// Percentile returns the smallest value at which the cumulative sample
// count reaches p percent of the total, or 0 for an empty distribution.
func Percentile(distribution map[int]int, p float64) int {
	total := 0
	values := make([]int, 0, len(distribution))
	for v, n := range distribution {
		total += n
		values = append(values, v)
	}
	sort.Ints(values)
	threshold := int(p / 100 * float64(total))
	accum := 0
	for _, v := range values {
		samples := distribution[v]
		if accum+samples >= threshold {
			return v
		}
		accum += samples
	}
	return 0
}
