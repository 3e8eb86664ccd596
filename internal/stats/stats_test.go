package stats_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/stats"
)

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)

func newSink(t *testing.T) *stats.Sink {
	t.Helper()
	s, err := stats.Open(filepath.Join(t.TempDir(), "stats.db"), zap.NewNop())
	require.NoError(t, err)
	s.SetNow(func() time.Time { return now })
	t.Cleanup(func() { s.Close() })
	return s
}

const browser = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

func TestSpamFilter(t *testing.T) {
	f, err := stats.NewSpamFilter()
	require.NoError(t, err)

	assert.True(t, f.IsSpam("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", ""))
	assert.True(t, f.IsSpam("python-requests/2.31", ""))
	assert.True(t, f.IsSpam(browser, "http://semalt.com/crawler.php?u=x"))
	assert.False(t, f.IsSpam(browser, "https://en.wikipedia.org/wiki/Main_Page"))
	assert.False(t, f.IsSpam("", ""))
}

func TestLogRequest(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	logged, err := s.LogRequest(ctx, stats.Request{
		Lang: "en", URL: "https://example.org/en?id=abc", StatusCode: 200,
	}, "Googlebot/2.1")
	require.NoError(t, err)
	assert.False(t, logged)

	logged, err = s.LogRequest(ctx, stats.Request{
		Lang: "en", SnippetID: "abc", CategoryID: "cat", URL: "https://example.org/en?id=abc", StatusCode: 200,
	}, browser)
	require.NoError(t, err)
	assert.True(t, logged)

	rep, err := s.Report(ctx, "en", 3, "")
	require.NoError(t, err)
	require.Len(t, rep.Served, 3)
	assert.Equal(t, stats.DayCount{Day: "2026-03-10", Count: 1}, rep.Served[2])
	assert.Equal(t, []stats.KeyCount{{Key: "cat", Count: 1}}, rep.Categories)
}

func TestParseClick(t *testing.T) {
	c, ok := stats.ParseClick("https://example.org/en/redirect?id=abc&to=wiki/Eiffel_Tower&custom=i1")
	require.True(t, ok)
	assert.Equal(t, stats.Click{SnippetID: "abc", Title: "Eiffel Tower", IntersectionID: "i1"}, c)

	c, ok = stats.ParseClick("https://example.org/fr/redirect?id=x&to=wiki%2FCaf%25C3%25A9")
	require.True(t, ok)
	assert.Equal(t, "Café", c.Title)

	for _, raw := range []string{
		"https://example.org/en?id=abc",
		"https://example.org/en/redirect?to=wiki/A",
		"https://example.org/en/redirect?id=abc&to=w/A",
		"https://example.org/en/redirect?id=abc&to=wiki/",
	} {
		_, ok := stats.ParseClick(raw)
		assert.False(t, ok, raw)
	}
}

func TestRecentClicksSkipsFixed(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	for i, id := range []string{"s1", "s2", "s1"} {
		_, err := s.LogRequest(ctx, stats.Request{
			Time:       now.Add(time.Duration(i-5) * time.Minute),
			Lang:       "en",
			SnippetID:  id,
			URL:        "https://example.org/en/redirect?id=" + id + "&to=wiki/Page",
			StatusCode: 302,
		}, browser)
		require.NoError(t, err)
	}
	_, err := s.LogRequest(ctx, stats.Request{
		Time: now.Add(-4 * time.Hour), Lang: "en", SnippetID: "old",
		URL: "https://example.org/en/redirect?id=old&to=wiki/Page", StatusCode: 302,
	}, browser)
	require.NoError(t, err)

	clicks, err := s.RecentClicks(ctx, "en", now.Add(-3*time.Hour))
	require.NoError(t, err)
	require.Len(t, clicks, 3)
	assert.True(t, now.Add(-5*time.Minute).Equal(clicks[0].Time))

	added, err := s.AddFixed(ctx, stats.Fixed{ClickedAt: clicks[0].Time, SnippetID: "s1", Lang: "en", RevID: 42})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddFixed(ctx, stats.Fixed{ClickedAt: clicks[2].Time, SnippetID: "s1", Lang: "en", RevID: 42})
	require.NoError(t, err)
	assert.False(t, added)

	clicks, err = s.RecentClicks(ctx, "en", now.Add(-3*time.Hour))
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "s2", clicks[0].SnippetID)

	ids, err := s.FixedSnippetIDs(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"s1": true}, ids)
}

func TestFixedQueries(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	for _, f := range []stats.Fixed{
		{ClickedAt: now.Add(-time.Hour), SnippetID: "a", Lang: "en", RevID: 1, IntersectionID: "i1"},
		{ClickedAt: now.Add(-2 * time.Hour), SnippetID: "b", Lang: "en", RevID: 2},
		{ClickedAt: now.Add(-48 * time.Hour), SnippetID: "c", Lang: "en", RevID: 3},
		{ClickedAt: now.Add(-time.Hour), SnippetID: "d", Lang: "fr", RevID: 4},
	} {
		_, err := s.AddFixed(ctx, f)
		require.NoError(t, err)
	}

	n, err := s.CountFixedSince(ctx, "en", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	revs, err := s.FixedRevisions(ctx, "en", now.Add(-30*24*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, revs)

	revs, err = s.FixedRevisions(ctx, "en", now.Add(-30*24*time.Hour), "i1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, revs)

	rep, err := s.Report(ctx, "en", 3, "")
	require.NoError(t, err)
	assert.Equal(t, []stats.DayCount{
		{Day: "2026-03-08", Count: 1},
		{Day: "2026-03-09", Count: 0},
		{Day: "2026-03-10", Count: 2},
	}, rep.Fixed)
}

func TestPurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	for _, age := range []time.Duration{time.Hour, 40 * 24 * time.Hour} {
		_, err := s.LogRequest(ctx, stats.Request{
			Time: now.Add(-age), Lang: "en", URL: "https://example.org/en", StatusCode: 200,
		}, browser)
		require.NoError(t, err)
	}
	_, err := s.AddFixed(ctx, stats.Fixed{ClickedAt: now.Add(-40 * 24 * time.Hour), SnippetID: "x", Lang: "en", RevID: 1})
	require.NoError(t, err)

	n, err := s.PurgeOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReportSkipsOwnReferrer(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	for _, ref := range []string{"https://news.example.com/a", "https://snippethunt.example.org/en", ""} {
		_, err := s.LogRequest(ctx, stats.Request{
			Lang: "en", URL: "https://snippethunt.example.org/en", StatusCode: 200, Referrer: ref,
		}, browser)
		require.NoError(t, err)
	}

	rep, err := s.Report(ctx, "en", 1, "snippethunt.example.org")
	require.NoError(t, err)
	assert.Equal(t, []stats.KeyCount{{Key: "https://news.example.com/a", Count: 1}}, rep.Referrers)
}

func TestPad(t *testing.T) {
	got := stats.Pad(map[string]int{"2026-03-09": 4}, 2, now)
	assert.Equal(t, []stats.DayCount{{Day: "2026-03-09", Count: 4}, {Day: "2026-03-10", Count: 0}}, got)
}
