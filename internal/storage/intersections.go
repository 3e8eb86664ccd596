package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// SaveIntersection upserts an intersection over articleIDs, refreshing its
// expiration, and rebuilds its ring. Ids of articles that are not stored
// are skipped.
func (s *Store) SaveIntersection(ctx context.Context, id string, articleIDs []int, expiration time.Time) error {
	return s.withTx(ctx, "save_intersection", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO intersections (id, expiration) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET expiration = excluded.expiration
		`, id, formatTime(expiration)); err != nil {
			return fmt.Errorf("failed to upsert intersection %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM articles_intersections WHERE inter_id = ?", id); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO articles_intersections (article_id, inter_id)
			SELECT page_id, ? FROM articles WHERE page_id = ?
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, aid := range articleIDs {
			if _, err := stmt.ExecContext(ctx, id, aid); err != nil {
				return fmt.Errorf("failed to add article %d to %s: %w", aid, id, err)
			}
		}

		return populateLinks(ctx, tx, []Group{IntersectionGroup(id)})
	})
}

// Intersection returns the expiration of an intersection, or ErrNotFound.
func (s *Store) Intersection(ctx context.Context, id string) (time.Time, error) {
	var exp time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT expiration FROM intersections WHERE id = ?", id).Scan(&exp)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return exp, err
}

// IntersectionArticleIDs lists the members of an intersection.
func (s *Store) IntersectionArticleIDs(ctx context.Context, id string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT article_id FROM articles_intersections WHERE inter_id = ? ORDER BY article_id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var aid int
		if err := rows.Scan(&aid); err != nil {
			return nil, err
		}
		ids = append(ids, aid)
	}
	return ids, rows.Err()
}

// SweepResult reports the state after SweepIntersections.
type SweepResult struct {
	Imported int
	Kept     int
}

// SweepIntersections drops expired intersections and memberships of
// articles that are gone, rebuilds the remaining rings and deletes
// intersections left empty.
//
// When previous names another database (the live one, while building a
// replacement), its unexpired intersections are imported first, replacing
// the local ones. A missing previous file imports nothing.
func (s *Store) SweepIntersections(ctx context.Context, previous string, now time.Time) (SweepResult, error) {
	var res SweepResult

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	attached := false
	if previous != "" && previous != s.path {
		if _, err := os.Stat(previous); err == nil {
			if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS prev", previous); err != nil {
				return res, fmt.Errorf("failed to attach %s: %w", previous, err)
			}
			attached = true
			defer conn.ExecContext(context.Background(), "DETACH DATABASE prev")
		} else {
			s.logger.Info("no previous database to import intersections from")
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(now)
	if attached {
		if _, err := tx.ExecContext(ctx, "DELETE FROM intersections"); err != nil {
			return res, err
		}
		r, err := tx.ExecContext(ctx,
			"INSERT INTO intersections (id, expiration) SELECT id, expiration FROM prev.intersections WHERE expiration > ?", ts)
		if err != nil {
			return res, fmt.Errorf("failed to import intersections: %w", err)
		}
		n, _ := r.RowsAffected()
		res.Imported = int(n)
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO articles_intersections (article_id, inter_id)
			SELECT article_id, inter_id FROM prev.articles_intersections
			WHERE article_id IN (SELECT page_id FROM articles)
			AND inter_id IN (SELECT id FROM intersections)
		`); err != nil {
			return res, fmt.Errorf("failed to import intersection members: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, "DELETE FROM intersections WHERE expiration <= ?", ts); err != nil {
			return res, err
		}
	}

	ids, err := queryStrings(ctx, tx, "SELECT id FROM intersections ORDER BY id")
	if err != nil {
		return res, err
	}
	groups := make([]Group, len(ids))
	for i, id := range ids {
		groups[i] = IntersectionGroup(id)
	}
	if err := populateLinks(ctx, tx, groups); err != nil {
		return res, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM intersections
		WHERE id NOT IN (SELECT inter_id FROM articles_intersections)
	`); err != nil {
		return res, err
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM intersections").Scan(&res.Kept); err != nil {
		return res, err
	}
	return res, tx.Commit()
}
