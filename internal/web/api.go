package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/indexer"
	"github.com/deidaraiorek/snippethunt/internal/stats"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

func (s *Server) handleCreateIntersection(w http.ResponseWriter, r *http.Request) {
	req, err := indexer.ParseIntersectionRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	inter, err := s.indexer.CreateIntersection(r.Context(), req)
	if errors.Is(err, indexer.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err != nil {
		s.internalError(w, "failed to create intersection", err)
		return
	}
	writeJSON(w, http.StatusOK, inter)
}

// handleSnippetsInArticles maps each requested article to links to its
// snippets.
func (s *Server) handleSnippetsInArticles(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query()["page_id"]
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	ids := make([]int, len(raw))
	for i, v := range raw {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
		ids[i] = id
	}

	found, err := s.store.SnippetsInArticles(r.Context(), ids, s.cfg.API.MaxReturnedSnippets)
	if err != nil {
		s.internalError(w, "failed to load snippets", err)
		return
	}
	base := requestBase(r)
	out := make(map[int][]string, len(found))
	for pageID, snippetIDs := range found {
		links := make([]string, len(snippetIDs))
		for i, id := range snippetIDs {
			links[i] = base + s.snippetPath(id, storage.Group{})
		}
		out[pageID] = links
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFixed answers with the number of snippets fixed since from_ts, a
// unix timestamp. Missing values, and values more than a day away from
// now, mean the last 24 hours.
func (s *Server) handleFixed(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	from := now.Add(-fixedWindow)
	if v, err := strconv.ParseFloat(r.URL.Query().Get("from_ts"), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		sec, frac := math.Modf(v)
		ts := time.Unix(int64(sec), int64(frac*float64(time.Second)))
		if d := now.Sub(ts); d <= fixedWindow && d >= -fixedWindow {
			from = ts
		}
	}

	n, err := s.stats.CountFixedSince(r.Context(), s.cfg.LangCode, from)
	if err != nil {
		s.internalError(w, "failed to count fixed snippets", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, n)
}

type leaderboardEntry struct {
	User  string `json:"user"`
	Count int    `json:"count"`
}

type leaderboardResponse struct {
	Days    int                `json:"days"`
	Custom  string             `json:"custom,omitempty"`
	Entries []leaderboardEntry `json:"entries"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeError(w, http.StatusServiceUnavailable, "Leaderboard unavailable")
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	resp := leaderboardResponse{
		Days:    parseDays(q.Get("days"), defaultLeaderboardDays),
		Custom:  q.Get("custom"),
		Entries: []leaderboardEntry{},
	}

	since := s.now().Add(-time.Duration(resp.Days) * 24 * time.Hour)
	revs, err := s.stats.FixedRevisions(ctx, s.cfg.LangCode, since, resp.Custom)
	if err != nil {
		s.internalError(w, "failed to load fixed revisions", err)
		return
	}
	if len(revs) > 0 {
		users, err := s.users.RevisionUsers(ctx, revs)
		if err != nil {
			s.internalError(w, "failed to load revision users", err)
			return
		}
		resp.Entries = topUsers(users, leaderboardSize)
	}
	writeJSON(w, http.StatusOK, resp)
}

// topUsers counts users and returns the n most frequent, ties by name.
func topUsers(users []string, n int) []leaderboardEntry {
	counts := make(map[string]int)
	for _, u := range users {
		counts[u]++
	}
	entries := make([]leaderboardEntry, 0, len(counts))
	for u, c := range counts {
		entries = append(entries, leaderboardEntry{User: u, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].User < entries[j].User
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

type categoryHits struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

type statsResponse struct {
	stats.Report
	Categories []categoryHits `json:"categories"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days := parseDays(r.URL.Query().Get("days"), defaultStatsDays)
	rep, err := s.stats.Report(ctx, s.cfg.LangCode, days, r.Host)
	if err != nil {
		s.internalError(w, "failed to compute stats", err)
		return
	}

	resp := statsResponse{Report: rep, Categories: make([]categoryHits, 0, len(rep.Categories))}
	for _, kc := range rep.Categories {
		title, err := s.store.Category(ctx, kc.Key)
		if errors.Is(err, storage.ErrNotFound) {
			title = "(gone)"
		} else if err != nil {
			s.internalError(w, "failed to load category", err)
			return
		}
		resp.Categories = append(resp.Categories, categoryHits{ID: kc.Key, Title: title, Count: kc.Count})
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseDays(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > maxDays {
		return maxDays
	}
	return n
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal error")
}
