package web

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/storage"
)

// categoryAll is the category id meaning no category.
const categoryAll = "all"

type categoryRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type snippetResponse struct {
	ID                 string       `json:"id"`
	Snippet            string       `json:"snippet"`
	Section            string       `json:"section"`
	ArticleURL         string       `json:"article_url"`
	ArticleTitle       string       `json:"article_title"`
	RedirectURL        string       `json:"redirect_url"`
	NextSnippetID      string       `json:"next_snippet_id"`
	Category           *categoryRef `json:"category,omitempty"`
	Custom             string       `json:"custom,omitempty"`
	OldestTemplateDate string       `json:"oldest_template_date,omitempty"`
	Old                bool         `json:"old"`
}

// group resolves the cat and custom query parameters. A category wins over
// an intersection. ok is false for an unknown category.
func (s *Server) group(ctx context.Context, q url.Values) (storage.Group, *categoryRef, bool, error) {
	catID, inter := q.Get("cat"), q.Get("custom")
	if catID == categoryAll {
		catID = ""
	}
	switch {
	case catID != "":
		title, err := s.store.Category(ctx, catID)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Group{}, nil, false, nil
		}
		if err != nil {
			return storage.Group{}, nil, false, err
		}
		return storage.CategoryGroup(catID), &categoryRef{ID: catID, Title: title}, true, nil
	case inter != "":
		return storage.IntersectionGroup(inter), nil, true, nil
	}
	return storage.Group{}, nil, true, nil
}

func (s *Server) snippetPath(id string, g storage.Group) string {
	p := "/" + s.cfg.LangCode + "/snippets/" + url.PathEscape(id)
	switch {
	case g.CategoryID != "":
		p += "?cat=" + url.QueryEscape(g.CategoryID)
	case g.IntersectionID != "":
		p += "?custom=" + url.QueryEscape(g.IntersectionID)
	}
	return p
}

func (s *Server) handleSnippet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	g, cat, ok, err := s.group(ctx, r.URL.Query())
	if err != nil {
		s.internalError(w, "failed to load category", err)
		return
	}
	if !ok {
		http.Redirect(w, r, s.snippetPath(id, storage.Group{}), http.StatusFound)
		return
	}

	sn, err := s.store.Snippet(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Snippet not found")
		return
	}
	if err != nil {
		s.internalError(w, "failed to load snippet", err)
		return
	}

	next, err := s.nextSnippetID(ctx, id, g)
	if errors.Is(err, storage.ErrNotFound) {
		// The snippet is not part of the category or intersection.
		http.Redirect(w, r, s.snippetPath(id, storage.Group{}), http.StatusFound)
		return
	}
	if err != nil {
		s.internalError(w, "failed to find next snippet", err)
		return
	}

	resp := snippetResponse{
		ID:            sn.ID,
		Snippet:       s.policy.Sanitize(sn.HTML),
		Section:       sn.Section,
		ArticleURL:    sn.Article.URL,
		ArticleTitle:  sn.Article.Title,
		RedirectURL:   s.redirectPath(sn, g.IntersectionID),
		NextSnippetID: next,
		Category:      cat,
		Custom:        g.IntersectionID,
	}
	if !sn.OldestTemplateDate.IsZero() {
		resp.OldestTemplateDate = sn.OldestTemplateDate.Format("2006-01-02")
		if threshold := s.cfg.OldSnippetThreshold(); threshold > 0 {
			resp.Old = s.now().Sub(sn.OldestTemplateDate) > threshold
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// redirectPath is the click-through link to the snippet's article that the
// fixed-snippet detector later picks up from the request log.
func (s *Server) redirectPath(sn storage.ArticleSnippet, inter string) string {
	q := url.Values{}
	q.Set("id", sn.ID)
	q.Set("to", "wiki/"+strings.ReplaceAll(sn.Article.Title, " ", "_"))
	if inter != "" {
		q.Set("custom", inter)
	}
	return "/" + s.cfg.LangCode + "/redirect?" + q.Encode()
}

// nextSnippetID follows the ring of g. Without a group it picks a random
// snippet, trying a few times to move away from id.
func (s *Server) nextSnippetID(ctx context.Context, id string, g storage.Group) (string, error) {
	if !g.IsZero() {
		return s.store.NextSnippetID(ctx, id, g)
	}
	next := id
	for i := 0; i < 3 && next == id; i++ {
		var err error
		if next, err = s.store.RandomSnippetID(ctx, g); err != nil {
			return "", err
		}
	}
	return next, nil
}

func (s *Server) handleRandomSnippet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	g, _, ok, err := s.group(ctx, r.URL.Query())
	if err != nil {
		s.internalError(w, "failed to load category", err)
		return
	}
	if !ok {
		g = storage.Group{}
	}

	id, err := s.store.RandomSnippetID(ctx, g)
	if errors.Is(err, storage.ErrNotFound) && !g.IsZero() {
		g = storage.Group{}
		id, err = s.store.RandomSnippetID(ctx, g)
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No snippets")
		return
	}
	if err != nil {
		s.internalError(w, "failed to pick a snippet", err)
		return
	}
	http.Redirect(w, r, s.snippetPath(id, g), http.StatusFound)
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := q.Get("to")
	if q.Get("id") == "" || !strings.HasPrefix(to, "wiki/") || len(to) == len("wiki/") {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	http.Redirect(w, r, s.cfg.WikiURL(strings.TrimPrefix(to, "wiki/")), http.StatusFound)
}

type searchResponse struct {
	Results []storage.CategoryCount `json:"results"`
}

// handleSearchCategory matches category titles by substring first and falls
// back to stemmed terms when nothing contains the query.
func (s *Server) handleSearchCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	needle := strings.TrimSpace(q.Get("q"))
	limit := maxSearchResults
	if n, err := strconv.Atoi(q.Get("max_results")); err == nil && n >= 0 && n < limit {
		limit = n
	}

	resp := searchResponse{Results: []storage.CategoryCount{}}
	if needle == "" || limit == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	found, err := s.store.SearchCategories(ctx, needle, limit)
	if err != nil {
		s.internalError(w, "failed to search categories", err)
		return
	}
	if len(found) == 0 {
		ix, err := s.categoryIndex(ctx)
		if err != nil {
			s.internalError(w, "failed to build category index", err)
			return
		}
		found = ix.Search(needle, limit)
		s.logger.Debug("stemmed category search", zap.String("q", needle), zap.Int("results", len(found)))
	}
	if len(found) > 0 {
		resp.Results = found
	}
	writeJSON(w, http.StatusOK, resp)
}
