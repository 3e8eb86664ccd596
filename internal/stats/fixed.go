package stats

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/deidaraiorek/snippethunt/internal/storage"
)

// Click is a click-through from a snippet to its article.
type Click struct {
	Time           time.Time
	SnippetID      string
	Title          string
	IntersectionID string
}

// ParseClick recognises redirect URLs of the form
// .../redirect?id=<snippet id>&to=wiki/<title>[&custom=<intersection id>].
func ParseClick(raw string) (Click, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Path, "/redirect") {
		return Click{}, false
	}
	q := u.Query()
	id, to := q.Get("id"), q.Get("to")
	if id == "" || !strings.HasPrefix(to, "wiki/") {
		return Click{}, false
	}
	title := strings.TrimPrefix(to, "wiki/")
	if unescaped, err := url.PathUnescape(title); err == nil {
		title = unescaped
	}
	title = strings.ReplaceAll(title, "_", " ")
	if title == "" {
		return Click{}, false
	}
	return Click{SnippetID: id, Title: title, IntersectionID: q.Get("custom")}, true
}

// RecentClicks returns the click-throughs logged for lang since the given
// time, oldest first, leaving out snippets already known to be fixed.
func (s *Sink) RecentClicks(ctx context.Context, lang string, since time.Time) ([]Click, error) {
	fixed, err := s.FixedSnippetIDs(ctx, lang)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, url FROM requests
		WHERE lang_code = ? AND ts >= ? AND url LIKE '%/redirect%'
		ORDER BY ts
	`, lang, formatLocal(since))
	if err != nil {
		return nil, fmt.Errorf("failed to load clicks: %w", err)
	}
	defer rows.Close()

	var clicks []Click
	for rows.Next() {
		var ts, raw string
		if err := rows.Scan(&ts, &raw); err != nil {
			return nil, err
		}
		c, ok := ParseClick(raw)
		if !ok || fixed[c.SnippetID] {
			continue
		}
		if c.Time, err = parseLocal(ts); err != nil {
			return nil, fmt.Errorf("bad request timestamp %q: %w", ts, err)
		}
		clicks = append(clicks, c)
	}
	return clicks, rows.Err()
}

// Fixed is a snippet that disappeared from its article at RevID after
// being clicked at ClickedAt.
type Fixed struct {
	ClickedAt      time.Time
	SnippetID      string
	Lang           string
	RevID          int
	IntersectionID string
}

// AddFixed records f unless the (snippet, revision) pair is already
// known. It reports whether a row was inserted.
func (s *Sink) AddFixed(ctx context.Context, f Fixed) (bool, error) {
	var n int64
	err := storage.Retry(ctx, s.logger, "add_fixed", func() error {
		r, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO fixed (clicked_ts, snippet_id, lang_code, rev_id, inter_id)
			VALUES (?, ?, ?, ?, ?)
		`, formatLocal(f.ClickedAt), f.SnippetID, f.Lang, f.RevID, nullString(f.IntersectionID))
		if err != nil {
			return err
		}
		n, err = r.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to add fixed snippet %s: %w", f.SnippetID, err)
	}
	return n > 0, nil
}

// FixedSnippetIDs returns the ids of all snippets known to be fixed.
func (s *Sink) FixedSnippetIDs(ctx context.Context, lang string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT snippet_id FROM fixed WHERE lang_code = ?", lang)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixed snippets: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// CountFixedSince counts snippets fixed after a click between from and now.
func (s *Sink) CountFixedSince(ctx context.Context, lang string, from time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fixed
		WHERE lang_code = ? AND clicked_ts BETWEEN ? AND ?
	`, lang, formatLocal(from), formatLocal(s.now())).Scan(&n)
	return n, err
}

// FixedRevisions returns the revisions that fixed snippets clicked since
// the given time, optionally restricted to one intersection.
func (s *Sink) FixedRevisions(ctx context.Context, lang string, since time.Time, intersectionID string) ([]int, error) {
	query := "SELECT rev_id FROM fixed WHERE lang_code = ? AND clicked_ts >= ?"
	args := []any{lang, formatLocal(since)}
	if intersectionID != "" {
		query += " AND inter_id = ?"
		args = append(args, intersectionID)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY rev_id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixed revisions: %w", err)
	}
	defer rows.Close()

	var revs []int
	for rows.Next() {
		var rev int
		if err := rows.Scan(&rev); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}
