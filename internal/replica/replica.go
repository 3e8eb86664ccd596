// Package replica reads the upstream wiki database replica: category
// links, hidden categories, template transclusions and revision authors.
// The replica is never written to.
package replica

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

const (
	namespaceMain     = 0
	namespaceTemplate = 10
	namespaceCategory = 14

	// Replica hosts cap concurrent connections per user.
	maxOpenConns = 2
	batchSize    = 1000
)

// Membership is one row of categorylinks: page PageID is in category
// Category (raw name, underscores and all).
type Membership struct {
	Category string
	PageID   int
}

type Replica struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to a MySQL replica.
func Open(dsn string, logger *zap.Logger) (*Replica, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open replica: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return New(db, logger), nil
}

// New wraps an open handle.
func New(db *sql.DB, logger *zap.Logger) *Replica {
	return &Replica{db: db, logger: logger.Named("replica")}
}

func (r *Replica) Close() error {
	return r.db.Close()
}

// HiddenCategories returns the names of the categories that are members
// of hiddenCategory.
func (r *Replica) HiddenCategories(ctx context.Context, hiddenCategory string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT page.page_title FROM categorylinks
		JOIN page ON page.page_id = categorylinks.cl_from
		WHERE categorylinks.cl_to = ? AND page.page_namespace = ?
	`, hiddenCategory, namespaceCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to load hidden categories: %w", err)
	}
	defer rows.Close()

	hidden := make(map[string]bool)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		hidden[title] = true
	}
	return hidden, rows.Err()
}

// CategoriesForPages returns the category memberships of pageIDs.
func (r *Replica) CategoriesForPages(ctx context.Context, pageIDs []int) ([]Membership, error) {
	var out []Membership
	for start := 0; start < len(pageIDs); start += batchSize {
		end := min(start+batchSize, len(pageIDs))
		args := intArgs(pageIDs[start:end])

		rows, err := r.db.QueryContext(ctx,
			"SELECT cl_to, cl_from FROM categorylinks WHERE cl_from IN ("+placeholders(len(args))+")",
			args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
		for rows.Next() {
			var m Membership
			if err := rows.Scan(&m.Category, &m.PageID); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, m)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UnsourcedPageIDs returns the main-namespace pages that transclude any of
// templates. Template names may use spaces or underscores.
func (r *Replica) UnsourcedPageIDs(ctx context.Context, templates []string) ([]int, error) {
	if len(templates) == 0 {
		return nil, nil
	}
	args := []any{namespaceMain, namespaceTemplate}
	for _, t := range templates {
		args = append(args, strings.ReplaceAll(t, " ", "_"))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT tl_from FROM templatelinks
		WHERE tl_from_namespace = ? AND tl_namespace = ?
		AND tl_title IN (`+placeholders(len(templates))+`)
		ORDER BY tl_from
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load unsourced pages: %w", err)
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
	r.logger.Info("loaded unsourced pages", zap.Int("count", len(ids)))
	return ids, rows.Err()
}

// RevisionUsers returns the registered author of each of revIDs, once per
// revision. Anonymous edits are skipped.
func (r *Replica) RevisionUsers(ctx context.Context, revIDs []int) ([]string, error) {
	var users []string
	for start := 0; start < len(revIDs); start += batchSize {
		end := min(start+batchSize, len(revIDs))
		args := intArgs(revIDs[start:end])

		rows, err := r.db.QueryContext(ctx, `
			SELECT actor.actor_name FROM revision_userindex
			JOIN actor ON actor.actor_id = revision_userindex.rev_actor
			WHERE actor.actor_user IS NOT NULL
			AND revision_userindex.rev_id IN (`+placeholders(len(args))+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load revision users: %w", err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			users = append(users, name)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return users, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func intArgs(ids []int) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
