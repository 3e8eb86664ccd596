package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Group names a navigation ring: a category or an intersection. The zero
// Group means all snippets.
type Group struct {
	CategoryID     string
	IntersectionID string
}

func CategoryGroup(id string) Group     { return Group{CategoryID: id} }
func IntersectionGroup(id string) Group { return Group{IntersectionID: id} }

func (g Group) IsZero() bool { return g.CategoryID == "" && g.IntersectionID == "" }

// column and id of the snippets_links rows of g.
func (g Group) column() (string, string) {
	if g.CategoryID != "" {
		return "cat_id", g.CategoryID
	}
	return "inter_id", g.IntersectionID
}

// members selects the snippet ids of g ordered by article title.
func (g Group) members() (string, string) {
	if g.CategoryID != "" {
		return `
			SELECT s.id FROM snippets s
			JOIN articles a ON a.page_id = s.article_id
			JOIN articles_categories m ON m.article_id = a.page_id
			WHERE m.category_id = ?
			ORDER BY a.title, s.id`, g.CategoryID
	}
	return `
		SELECT s.id FROM snippets s
		JOIN articles a ON a.page_id = s.article_id
		JOIN articles_intersections m ON m.article_id = a.page_id
		WHERE m.inter_id = ?
		ORDER BY a.title, s.id`, g.IntersectionID
}

// Ring pairs every id with its successor, the last one with the first.
func Ring(ids []string) [][2]string {
	pairs := make([][2]string, len(ids))
	for i, id := range ids {
		pairs[i] = [2]string{id, ids[(i+1)%len(ids)]}
	}
	return pairs
}

// populateLinks replaces the rings of groups inside tx.
func populateLinks(ctx context.Context, tx *sql.Tx, groups []Group) error {
	for _, g := range groups {
		col, id := g.column()
		if _, err := tx.ExecContext(ctx, "DELETE FROM snippets_links WHERE "+col+" = ?", id); err != nil {
			return fmt.Errorf("failed to clear ring %s: %w", id, err)
		}

		query, arg := g.members()
		ids, err := queryStrings(ctx, tx, query, arg)
		if err != nil {
			return fmt.Errorf("failed to load ring %s: %w", id, err)
		}
		if len(ids) == 0 {
			continue
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO snippets_links (prev, next, "+col+") VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		for _, p := range Ring(ids) {
			if _, err := stmt.ExecContext(ctx, p[0], p[1], id); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert link in %s: %w", id, err)
			}
		}
		stmt.Close()
	}
	return nil
}

// NextSnippetID follows the ring of g from id. It returns ErrNotFound when
// id is not part of g.
func (s *Store) NextSnippetID(ctx context.Context, id string, g Group) (string, error) {
	if g.IsZero() {
		return "", fmt.Errorf("next snippet needs a category or intersection")
	}
	col, gid := g.column()
	var next string
	err := s.db.QueryRowContext(ctx,
		"SELECT next FROM snippets_links WHERE prev = ? AND "+col+" = ?", id, gid,
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return next, err
}

// RandomSnippetID picks a snippet of g, or of the whole database for the
// zero Group. It returns ErrNotFound when there is none.
func (s *Store) RandomSnippetID(ctx context.Context, g Group) (string, error) {
	var query string
	var args []any
	switch {
	case g.CategoryID != "":
		query = `SELECT s.id FROM snippets s
			JOIN articles_categories m ON m.article_id = s.article_id
			WHERE m.category_id = ? ORDER BY RANDOM() LIMIT 1`
		args = []any{g.CategoryID}
	case g.IntersectionID != "":
		query = `SELECT s.id FROM snippets s
			JOIN articles_intersections m ON m.article_id = s.article_id
			WHERE m.inter_id = ? ORDER BY RANDOM() LIMIT 1`
		args = []any{g.IntersectionID}
	default:
		// Sample by rowid to avoid sorting the whole table.
		query = `SELECT id FROM snippets WHERE rowid >= (
				SELECT abs(random()) % (MAX(rowid) + 1) FROM snippets
			) ORDER BY rowid LIMIT 1`
	}

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) && g.IsZero() {
		err = s.db.QueryRowContext(ctx, "SELECT id FROM snippets ORDER BY rowid LIMIT 1").Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// RingIDs walks the ring of g starting at its first link, for inspection.
func (s *Store) RingIDs(ctx context.Context, g Group) ([]string, error) {
	col, gid := g.column()
	rows, err := s.db.QueryContext(ctx,
		"SELECT prev, next FROM snippets_links WHERE "+col+" = ?", gid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	next := make(map[string]string)
	var first string
	for rows.Next() {
		var p, n string
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		if first == "" || p < first {
			first = p
		}
		next[p] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []string
	for id := first; id != "" && len(out) < len(next); id = next[id] {
		out = append(out, id)
		if next[id] == first {
			break
		}
	}
	return out, nil
}
