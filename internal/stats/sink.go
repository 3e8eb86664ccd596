// Package stats is the request and fixed-snippet log. Rows carry naive
// local timestamps and live until they are purged by age.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/stats/migrations"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

// Request is one served request.
type Request struct {
	Time           time.Time
	Lang           string
	SnippetID      string
	CategoryID     string
	IntersectionID string
	URL            string
	Prefetch       bool
	StatusCode     int
	Referrer       string
}

type Sink struct {
	db     *sql.DB
	filter *SpamFilter
	logger *zap.Logger
	now    func() time.Time
}

// Open opens the stats database at path, applying its migrations.
func Open(path string, logger *zap.Logger) (*Sink, error) {
	filter, err := NewSpamFilter()
	if err != nil {
		return nil, err
	}
	db, err := storage.OpenSQLite(path, migrations.Files)
	if err != nil {
		return nil, err
	}
	return &Sink{db: db, filter: filter, logger: logger.Named("stats"), now: time.Now}, nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

// LogRequest appends r unless the user agent or referrer is spam. It
// reports whether the request was logged. A zero r.Time means now.
func (s *Sink) LogRequest(ctx context.Context, r Request, userAgent string) (bool, error) {
	if s.filter.IsSpam(userAgent, r.Referrer) {
		return false, nil
	}
	if r.Time.IsZero() {
		r.Time = s.now()
	}
	err := storage.Retry(ctx, s.logger, "log_request", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO requests
				(ts, lang_code, snippet_id, category_id, url, prefetch, status_code, referrer, inter_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, formatLocal(r.Time), r.Lang, nullString(r.SnippetID), nullString(r.CategoryID),
			r.URL, r.Prefetch, r.StatusCode, nullString(r.Referrer), nullString(r.IntersectionID))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to log request: %w", err)
	}
	return true, nil
}

// PurgeOlderThan deletes request and fixed rows older than maxAge and
// returns how many were deleted.
func (s *Sink) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := formatLocal(s.now().Add(-maxAge))
	var total int64
	for _, q := range []string{
		"DELETE FROM requests WHERE ts < ?",
		"DELETE FROM fixed WHERE clicked_ts < ?",
	} {
		var n int64
		err := storage.Retry(ctx, s.logger, "purge", func() error {
			r, err := s.db.ExecContext(ctx, q, cutoff)
			if err != nil {
				return err
			}
			n, err = r.RowsAffected()
			return err
		})
		if err != nil {
			return total, fmt.Errorf("failed to purge: %w", err)
		}
		total += n
	}
	return total, nil
}

func formatLocal(t time.Time) string {
	return t.In(time.Local).Format(timeLayout)
}

func parseLocal(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.Local)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
