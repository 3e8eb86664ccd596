package indexer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/replica"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

const (
	categoryBatchSize   = 10000
	minCategorySnippets = 2
)

// CategorySource is where category memberships come from, normally the
// wiki's database replica.
type CategorySource interface {
	HiddenCategories(ctx context.Context, hiddenCategory string) (map[string]bool, error)
	CategoriesForPages(ctx context.Context, pageIDs []int) ([]replica.Membership, error)
}

// AssignResult summarises a category assignment pass.
type AssignResult struct {
	Hidden      int
	Usable      int
	Kept        int
	Memberships int
}

// CanonicalCategoryName turns a raw category page or link name into the
// stored form: valid UTF-8, no namespace prefix and spaces instead of
// underscores. Replica titles are raw bytes, so invalid sequences become
// U+FFFD before the name is matched against the blacklist.
func CanonicalCategoryName(raw string) string {
	raw = strings.ToValidUTF8(raw, "\uFFFD")
	for _, prefix := range []string{"Category:", "Wikipedia:"} {
		raw = strings.TrimPrefix(raw, prefix)
	}
	return strings.ReplaceAll(raw, "_", " ")
}

// CategoryID is the stored id of a canonical category name.
func CategoryID(name string) string {
	return snippet.Digest(name)
}

// AssignCategories replaces the category graph of the store: every
// visible, non-blacklisted category of a stored article that covers at
// least two snippets.
func (ix *Indexer) AssignCategories(ctx context.Context, src CategorySource) (AssignResult, error) {
	var res AssignResult

	blacklist := make([]*regexp.Regexp, 0, len(ix.cfg.CategoryNameRegexpsBlacklist))
	for _, expr := range ix.cfg.CategoryNameRegexpsBlacklist {
		re, err := regexp.Compile(expr)
		if err != nil {
			return res, fmt.Errorf("bad category blacklist regexp %q: %w", expr, err)
		}
		blacklist = append(blacklist, re)
	}

	pageIDs, err := ix.store.ArticleIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load article ids: %w", err)
	}

	rawHidden, err := src.HiddenCategories(ctx, ix.cfg.HiddenCategory)
	if err != nil {
		return res, err
	}
	hidden := make(map[string]bool, len(rawHidden))
	for name := range rawHidden {
		hidden[CanonicalCategoryName(name)] = true
	}
	res.Hidden = len(hidden)
	ix.logger.Info("loaded hidden categories", zap.Int("count", len(hidden)))

	usable := func(name string) bool {
		if hidden[name] {
			return false
		}
		for _, re := range blacklist {
			if re.MatchString(name) {
				return false
			}
		}
		return true
	}

	members := make(map[string][]int)
	for start := 0; start < len(pageIDs); start += categoryBatchSize {
		end := min(start+categoryBatchSize, len(pageIDs))
		ms, err := src.CategoriesForPages(ctx, pageIDs[start:end])
		if err != nil {
			return res, err
		}
		for _, m := range ms {
			name := CanonicalCategoryName(m.Category)
			if usable(name) {
				members[name] = append(members[name], m.PageID)
			}
		}
	}
	res.Usable = len(members)

	snippetCounts, err := ix.store.SnippetCounts(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to count snippets: %w", err)
	}

	categories := make([]storage.Category, 0, len(members))
	for name, ids := range members {
		total := 0
		for _, id := range ids {
			total += snippetCounts[id]
		}
		if total < minCategorySnippets {
			continue
		}
		sort.Ints(ids)
		categories = append(categories, storage.Category{ID: CategoryID(name), Title: name, ArticleIDs: ids})
		res.Memberships += len(ids)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Title < categories[j].Title })
	res.Kept = len(categories)

	if err := ix.store.ReplaceCategories(ctx, categories); err != nil {
		return res, err
	}
	ix.logger.Info("assigned categories",
		zap.Int("usable", res.Usable),
		zap.Int("kept", res.Kept),
		zap.Int("memberships", res.Memberships))
	return res, nil
}
