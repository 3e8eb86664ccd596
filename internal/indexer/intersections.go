package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/mwapi"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
)

// https://www.mediawiki.org/wiki/API:Query#Specifying_pages
const titlesPerRequest = 50

// ErrInvalidRequest is returned for intersection requests that fail
// validation.
var ErrInvalidRequest = errors.New("invalid request")

// TitleResolver maps page titles to page ids.
type TitleResolver interface {
	ResolveTitles(ctx context.Context, titles []string) ([]int, error)
}

// PageLister fetches external page lists.
type PageLister interface {
	PetScan(ctx context.Context, psid, wiki string, limit int) ([]int, error)
	PagePile(ctx context.Context, pileID, wiki string) ([]string, error)
}

// IntersectionRequest names the pages of a new intersection in exactly one
// of four ways. The first field set wins.
type IntersectionRequest struct {
	PageIDs    []int    `json:"page_ids,omitempty"`
	PageTitles []string `json:"page_titles,omitempty"`
	PSID       string   `json:"psid,omitempty"`
	PileID     string   `json:"pileid,omitempty"`
}

// ParseIntersectionRequest decodes and validates a JSON request body.
// Lists must be non-empty when present and ids must be strings of digits.
func ParseIntersectionRequest(r io.Reader) (IntersectionRequest, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return IntersectionRequest{}, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return IntersectionRequest{}, ErrInvalidRequest
	}

	var req IntersectionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return IntersectionRequest{}, ErrInvalidRequest
	}

	found := false
	for key, empty := range map[string]bool{
		"page_ids":    len(req.PageIDs) == 0,
		"page_titles": len(req.PageTitles) == 0,
		"psid":        !isDigits(req.PSID),
		"pileid":      !isDigits(req.PileID),
	} {
		if _, ok := raw[key]; !ok {
			continue
		}
		if empty {
			return IntersectionRequest{}, ErrInvalidRequest
		}
		found = true
	}
	if !found {
		return IntersectionRequest{}, ErrInvalidRequest
	}
	return req, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Intersection is a created intersection. ID is empty when none of the
// requested pages has snippets.
type Intersection struct {
	ID      string `json:"id"`
	PageIDs []int  `json:"page_ids"`
	TTLDays int    `json:"ttl_days"`
}

// IntersectionID derives the id of an intersection from its article
// titles, so that the same set of pages always maps to the same id.
func IntersectionID(titles []string) string {
	lower := make([]string, len(titles))
	for i, t := range titles {
		lower[i] = strings.ToLower(t)
	}
	sort.Strings(lower)
	return snippet.Digest(strings.Join(lower, "|"))
}

// CreateIntersection builds (or refreshes) the intersection described by
// req. External services that fail or return nothing yield an empty
// intersection rather than an error.
func (ix *Indexer) CreateIntersection(ctx context.Context, req IntersectionRequest) (Intersection, error) {
	var (
		ids []int
		err error
	)
	switch {
	case len(req.PageIDs) > 0:
		ids = req.PageIDs
	case len(req.PageTitles) > 0:
		ids, err = ix.resolveTitles(ctx, req.PageTitles)
	case req.PSID != "":
		ids = ix.petscan(ctx, req.PSID)
	case req.PileID != "":
		ids, err = ix.pagepile(ctx, req.PileID)
	default:
		return Intersection{}, ErrInvalidRequest
	}
	if err != nil {
		return Intersection{}, err
	}
	return ix.intersect(ctx, ids)
}

func (ix *Indexer) intersect(ctx context.Context, ids []int) (Intersection, error) {
	inter := Intersection{PageIDs: []int{}, TTLDays: ix.cfg.IntersectionExpirationDays}
	if len(ids) == 0 {
		return inter, nil
	}

	articles, err := ix.store.ArticlesByID(ctx, dedupe(ids))
	if err != nil {
		return inter, fmt.Errorf("failed to load articles: %w", err)
	}
	if limit := ix.cfg.IntersectionMaxSize; limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	if len(articles) == 0 {
		return inter, nil
	}

	titles := make([]string, len(articles))
	pageIDs := make([]int, len(articles))
	for i, a := range articles {
		titles[i] = a.Title
		pageIDs[i] = a.PageID
	}
	id := IntersectionID(titles)
	expiration := ix.now().Add(time.Duration(ix.cfg.IntersectionExpirationDays) * 24 * time.Hour)
	if err := ix.store.SaveIntersection(ctx, id, pageIDs, expiration); err != nil {
		return inter, err
	}
	ix.logger.Info("created intersection",
		zap.String("id", id),
		zap.Int("requested", len(ids)),
		zap.Int("pages", len(pageIDs)))

	inter.ID = id
	inter.PageIDs = pageIDs
	return inter, nil
}

func (ix *Indexer) resolveTitles(ctx context.Context, titles []string) ([]int, error) {
	if ix.titles == nil {
		return nil, errors.New("no title resolver configured")
	}
	return ix.titles.ResolveTitles(ctx, titles)
}

func (ix *Indexer) petscan(ctx context.Context, psid string) []int {
	if ix.lists == nil {
		return nil
	}
	// Ask for more than we keep, since not every page has snippets.
	ids, err := ix.lists.PetScan(ctx, psid, ix.cfg.WikiName(), ix.cfg.IntersectionMaxSize*2)
	if err != nil {
		ix.logger.Warn("petscan request failed", zap.String("psid", psid), zap.Error(err))
		return nil
	}
	return ids
}

func (ix *Indexer) pagepile(ctx context.Context, pileID string) ([]int, error) {
	if ix.lists == nil {
		return nil, nil
	}
	titles, err := ix.lists.PagePile(ctx, pileID, ix.cfg.WikiName())
	if err != nil {
		ix.logger.Warn("pagepile request failed", zap.String("pile", pileID), zap.Error(err))
		return nil, nil
	}
	if len(titles) == 0 {
		return nil, nil
	}
	return ix.resolveTitles(ctx, titles)
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// APITitleResolver resolves titles through the wiki API.
type APITitleResolver struct {
	api *mwapi.Client
}

func NewAPITitleResolver(api *mwapi.Client) *APITitleResolver {
	return &APITitleResolver{api: api}
}

func (r *APITitleResolver) ResolveTitles(ctx context.Context, titles []string) ([]int, error) {
	var ids []int
	for start := 0; start < len(titles); start += titlesPerRequest {
		end := min(start+titlesPerRequest, len(titles))
		it := r.api.Query(url.Values{"titles": {strings.Join(titles[start:end], "|")}})
		for {
			resp, ok, err := it.Next(ctx)
			if err != nil {
				it.Close()
				return nil, fmt.Errorf("failed to resolve titles: %w", err)
			}
			if !ok {
				break
			}
			for _, p := range mwapi.Pages(resp) {
				if !p.Missing() && p.ID() > 0 {
					ids = append(ids, p.ID())
				}
			}
		}
		it.Close()
	}
	return ids, nil
}
