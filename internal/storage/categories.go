package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Category is a category with the stored articles assigned to it.
type Category struct {
	ID         string
	Title      string
	ArticleIDs []int
}

// CategoryCount is a category with its number of articles, as used by
// category search.
type CategoryCount struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Articles int    `json:"npages"`
}

// ReplaceCategories swaps the whole category graph in one transaction:
// categories, memberships, category rings and article counts. Memberships
// of articles that are not stored are skipped. Intersection rings are left
// alone.
func (s *Store) ReplaceCategories(ctx context.Context, categories []Category) error {
	return s.withTx(ctx, "replace_categories", func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM snippets_links WHERE cat_id IS NOT NULL",
			"DELETE FROM category_article_count",
			"DELETE FROM articles_categories",
			"DELETE FROM categories",
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("failed to reset categories: %w", err)
			}
		}

		catStmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO categories (id, title) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer catStmt.Close()

		memberStmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO articles_categories (article_id, category_id)
			SELECT page_id, ? FROM articles WHERE page_id = ?
		`)
		if err != nil {
			return err
		}
		defer memberStmt.Close()

		groups := make([]Group, 0, len(categories))
		for _, c := range categories {
			if _, err := catStmt.ExecContext(ctx, c.ID, c.Title); err != nil {
				return fmt.Errorf("failed to insert category %q: %w", c.Title, err)
			}
			for _, id := range c.ArticleIDs {
				if _, err := memberStmt.ExecContext(ctx, c.ID, id); err != nil {
					return fmt.Errorf("failed to assign article %d to %q: %w", id, c.Title, err)
				}
			}
			groups = append(groups, CategoryGroup(c.ID))
		}

		if err := populateLinks(ctx, tx, groups); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO category_article_count (category_id, article_count)
			SELECT category_id, COUNT(*) FROM articles_categories GROUP BY category_id
		`)
		return err
	})
}

// Category returns the title of a category, or ErrNotFound.
func (s *Store) Category(ctx context.Context, id string) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx, "SELECT title FROM categories WHERE id = ?", id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return title, err
}

// SearchCategories returns up to limit categories whose title contains
// needle, ignoring ASCII case.
func (s *Store) SearchCategories(ctx context.Context, needle string, limit int) ([]CategoryCount, error) {
	pattern := "%" + escapeLike(needle) + "%"
	return s.categoryCounts(ctx, `
		SELECT c.id, c.title, n.article_count
		FROM categories c JOIN category_article_count n ON n.category_id = c.id
		WHERE c.title LIKE ? ESCAPE '\'
		ORDER BY n.article_count DESC, c.title
		LIMIT ?
	`, pattern, limit)
}

// CategoryCounts returns every category with its article count.
func (s *Store) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	return s.categoryCounts(ctx, `
		SELECT c.id, c.title, n.article_count
		FROM categories c JOIN category_article_count n ON n.category_id = c.id
		ORDER BY c.title
	`)
}

func (s *Store) categoryCounts(ctx context.Context, query string, args ...any) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.ID, &c.Title, &c.Articles); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
