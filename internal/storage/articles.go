package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Article struct {
	PageID int
	URL    string
	Title  string
}

type Snippet struct {
	ID                 string
	HTML               string
	Section            string
	OldestTemplateDate time.Time // zero when no template carried a date
}

// ArticleSnippets is the extraction result for one article.
type ArticleSnippets struct {
	Article  Article
	Snippets []Snippet
}

// SaveResult counts what SaveArticles kept and dropped.
type SaveResult struct {
	Articles  int
	Snippets  int
	Truncated int
}

// SaveArticles stores articles with their snippets in one transaction.
// Snippet HTML is cut to the configured maximum length on insert; cut rows
// are found by comparing them to their source and deleted, and an article
// left without snippets is deleted with them.
func (s *Store) SaveArticles(ctx context.Context, batch []ArticleSnippets) (SaveResult, error) {
	var res SaveResult
	err := s.withTx(ctx, "save_articles", func(tx *sql.Tx) error {
		res = SaveResult{}

		articleStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO articles (page_id, url, title)
			VALUES (?, ?, ?)
			ON CONFLICT(page_id) DO UPDATE SET
				url = excluded.url,
				title = excluded.title
		`)
		if err != nil {
			return err
		}
		defer articleStmt.Close()

		snippetStmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO snippets (id, snippet, section, article_id, oldest_template_date)
			VALUES (?, CASE WHEN ? > 0 THEN substr(?, 1, ?) ELSE ? END, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer snippetStmt.Close()

		truncatedStmt, err := tx.PrepareContext(ctx,
			"DELETE FROM snippets WHERE id = ? AND article_id = ? AND snippet != ?")
		if err != nil {
			return err
		}
		defer truncatedStmt.Close()

		for _, as := range batch {
			if len(as.Snippets) == 0 {
				continue
			}
			a := as.Article
			if _, err := articleStmt.ExecContext(ctx, a.PageID, a.URL, a.Title); err != nil {
				return fmt.Errorf("failed to insert article %d: %w", a.PageID, err)
			}

			kept := 0
			for _, sn := range as.Snippets {
				if _, err := snippetStmt.ExecContext(ctx,
					sn.ID, s.maxSnippetLength, sn.HTML, s.maxSnippetLength, sn.HTML,
					sn.Section, a.PageID, nullTime(sn.OldestTemplateDate),
				); err != nil {
					return fmt.Errorf("failed to insert snippet %s: %w", sn.ID, err)
				}
				r, err := truncatedStmt.ExecContext(ctx, sn.ID, a.PageID, sn.HTML)
				if err != nil {
					return fmt.Errorf("failed to check snippet %s: %w", sn.ID, err)
				}
				if n, _ := r.RowsAffected(); n > 0 {
					res.Truncated++
					continue
				}
				kept++
			}

			if _, err := tx.ExecContext(ctx, `
				DELETE FROM articles WHERE page_id = ?
				AND NOT EXISTS (SELECT 1 FROM snippets WHERE article_id = ?)
			`, a.PageID, a.PageID); err != nil {
				return fmt.Errorf("failed to clean up article %d: %w", a.PageID, err)
			}
			if kept > 0 {
				res.Articles++
				res.Snippets += kept
			}
		}
		return nil
	})
	return res, err
}

// ArticleIDs returns the page ids of all stored articles.
func (s *Store) ArticleIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT page_id FROM articles ORDER BY page_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ArticlesByID returns the stored articles among ids, ordered by title.
func (s *Store) ArticlesByID(ctx context.Context, ids []int) ([]Article, error) {
	var out []Article
	for _, chunk := range chunkInts(ids, 500) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT page_id, url, title FROM articles WHERE page_id IN ("+placeholders(len(chunk))+")",
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var a Article
			if err := rows.Scan(&a.PageID, &a.URL, &a.Title); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, a)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	sortArticles(out)
	return out, nil
}

// SnippetCounts maps article ids to their number of snippets.
func (s *Store) SnippetCounts(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT article_id, COUNT(id) FROM snippets GROUP BY article_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var id, n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (s *Store) ArticleCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&n)
	return n, err
}

func (s *Store) SnippetCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snippets").Scan(&n)
	return n, err
}

// ArticleSnippet is a snippet joined with its article.
type ArticleSnippet struct {
	Snippet
	Article Article
}

// Snippet looks up a snippet by id. It returns ErrNotFound for unknown ids.
func (s *Store) Snippet(ctx context.Context, id string) (ArticleSnippet, error) {
	var (
		out    ArticleSnippet
		oldest sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.snippet, s.section, s.oldest_template_date,
			a.page_id, a.url, a.title
		FROM snippets s JOIN articles a ON a.page_id = s.article_id
		WHERE s.id = ?
	`, id).Scan(&out.ID, &out.HTML, &out.Section, &oldest,
		&out.Article.PageID, &out.Article.URL, &out.Article.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if oldest.Valid {
		out.OldestTemplateDate = oldest.Time
	}
	return out, nil
}

// SnippetsInArticles maps each requested article to at most limit of its
// snippet ids (all of them when limit <= 0). Articles without snippets are
// absent from the result.
func (s *Store) SnippetsInArticles(ctx context.Context, pageIDs []int, limit int) (map[int][]string, error) {
	out := make(map[int][]string)
	for _, chunk := range chunkInts(pageIDs, 500) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT article_id, id FROM snippets WHERE article_id IN ("+placeholders(len(chunk))+") ORDER BY article_id, id",
			args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				pageID int
				id     string
			)
			if err := rows.Scan(&pageID, &id); err != nil {
				rows.Close()
				return nil, err
			}
			if limit <= 0 || len(out[pageID]) < limit {
				out[pageID] = append(out[pageID], id)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func chunkInts(ids []int, size int) [][]int {
	var chunks [][]int
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func sortArticles(as []Article) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Title != as[j].Title {
			return as[i].Title < as[j].Title
		}
		return as[i].PageID < as[j].PageID
	})
}
