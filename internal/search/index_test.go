package search_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deidaraiorek/snippethunt/internal/search"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

func titles(cs []storage.CategoryCount) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Title
	}
	return out
}

func newIndex() *search.Index {
	ix := search.NewIndex("en")
	ix.Rebuild([]storage.CategoryCount{
		{ID: "a", Title: "Towers in Paris", Articles: 3},
		{ID: "b", Title: "Art museums in Paris", Articles: 5},
		{ID: "c", Title: "Tower bridges", Articles: 2},
		{ID: "d", Title: "Museum ships", Articles: 1},
	})
	return ix
}

func TestIndexSearch(t *testing.T) {
	ix := newIndex()
	assert.Equal(t, 4, ix.Len())

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"stemmed match, ties by size", "tower", 10, []string{"Towers in Paris", "Tower bridges"}},
		{"shorter title scores higher", "museums", 10, []string{"Museum ships", "Art museums in Paris"}},
		{"all terms required", "museum paris", 10, []string{"Art museums in Paris"}},
		{"plural query", "bridges", 10, []string{"Tower bridges"}},
		{"limit", "tower", 1, []string{"Towers in Paris"}},
		{"no match", "castles", 10, []string{}},
		{"stop words only", "the of", 10, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(ix.Search(tt.query, tt.limit)))
		})
	}
}

func TestIndexRebuild(t *testing.T) {
	ix := newIndex()
	ix.Rebuild([]storage.CategoryCount{{ID: "e", Title: "Castles in Wales", Articles: 2}})
	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.Search("tower", 10))
	assert.Equal(t, []string{"Castles in Wales"}, titles(ix.Search("castle", 10)))
}
