package stats

import (
	"context"
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// DayCount is a count for one local calendar day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// KeyCount is a count for a referrer or category.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Report is the set of series behind the stats page.
type Report struct {
	Days       int        `json:"days"`
	Fixed      []DayCount `json:"fixed"`
	Served     []DayCount `json:"served"`
	Redirects  []DayCount `json:"redirects"`
	Referrers  []KeyCount `json:"referrers"`
	Categories []KeyCount `json:"categories"`
}

const topN = 30

// Report computes the daily series of the last days for lang. Referrers
// whose URL contains selfHost are left out.
func (s *Sink) Report(ctx context.Context, lang string, days int, selfHost string) (Report, error) {
	rep := Report{Days: days}
	since := s.since(days)

	var err error
	if rep.Fixed, err = s.daily(ctx, days, `
		SELECT substr(clicked_ts, 1, 10) AS dt, COUNT(*) FROM fixed
		WHERE lang_code = ? AND clicked_ts >= ? GROUP BY dt`, lang, since); err != nil {
		return rep, err
	}
	if rep.Served, err = s.daily(ctx, days, `
		SELECT substr(ts, 1, 10) AS dt, COUNT(*) FROM requests
		WHERE lang_code = ? AND ts >= ? AND snippet_id IS NOT NULL AND status_code = 200
		GROUP BY dt`, lang, since); err != nil {
		return rep, err
	}
	if rep.Redirects, err = s.daily(ctx, days, `
		SELECT substr(ts, 1, 10) AS dt, COUNT(*) FROM requests
		WHERE lang_code = ? AND ts >= ? AND url LIKE '%redirect%' AND status_code = 302
		GROUP BY dt`, lang, since); err != nil {
		return rep, err
	}

	refQuery := `
		SELECT referrer, COUNT(*) FROM requests
		WHERE lang_code = ? AND ts >= ? AND status_code = 200 AND referrer IS NOT NULL`
	refArgs := []any{lang, since}
	if selfHost != "" {
		refQuery += " AND instr(referrer, ?) = 0"
		refArgs = append(refArgs, selfHost)
	}
	if rep.Referrers, err = s.top(ctx, refQuery+" GROUP BY referrer ORDER BY COUNT(*) DESC, referrer LIMIT ?",
		append(refArgs, topN)...); err != nil {
		return rep, err
	}

	if rep.Categories, err = s.top(ctx, `
		SELECT category_id, COUNT(*) FROM requests
		WHERE lang_code = ? AND ts >= ? AND snippet_id IS NOT NULL AND category_id IS NOT NULL
		AND category_id != 'all' AND status_code = 200
		GROUP BY category_id ORDER BY COUNT(*) DESC, category_id LIMIT ?`, lang, since, topN); err != nil {
		return rep, err
	}
	return rep, nil
}

// since is the start of the first local day of a window of days days
// ending today.
func (s *Sink) since(days int) string {
	now := s.now().In(time.Local)
	start := time.Date(now.Year(), now.Month(), now.Day()-days+1, 0, 0, 0, 0, time.Local)
	return formatLocal(start)
}

func (s *Sink) daily(ctx context.Context, days int, query string, args ...any) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily series: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			day string
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Pad(counts, days, s.now()), nil
}

func (s *Sink) top(ctx context.Context, query string, args ...any) ([]KeyCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load top counts: %w", err)
	}
	defer rows.Close()

	var out []KeyCount
	for rows.Next() {
		var kc KeyCount
		if err := rows.Scan(&kc.Key, &kc.Count); err != nil {
			return nil, err
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}

// Pad spreads counts over the days days ending at now, oldest first, with
// zero for days that have no entry.
func Pad(counts map[string]int, days int, now time.Time) []DayCount {
	now = now.In(time.Local)
	out := make([]DayCount, 0, days)
	for d := days - 1; d >= 0; d-- {
		day := now.AddDate(0, 0, -d).Format(dayLayout)
		out = append(out, DayCount{Day: day, Count: counts[day]})
	}
	return out
}
