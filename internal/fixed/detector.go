// Package fixed watches click-throughs from snippets to their articles and
// records which snippets were subsequently fixed on the wiki, and by which
// revision.
package fixed

import (
	"context"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/mwapi"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
	"github.com/deidaraiorek/snippethunt/internal/stats"
)

const (
	DefaultWindow   = 3 * time.Hour
	DefaultInterval = 5 * time.Minute
	DefaultWorkers  = 4
)

// ClickLog is the request log the detector reads clicks from and writes
// fixed snippets to.
type ClickLog interface {
	RecentClicks(ctx context.Context, lang string, since time.Time) ([]stats.Click, error)
	AddFixed(ctx context.Context, f stats.Fixed) (bool, error)
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Extractor finds the snippets of one revision. Detector workers each own
// one.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]snippet.Snippet, error)
}

type Detector struct {
	cfg          *config.Config
	log          ClickLog
	api          *mwapi.Client
	newExtractor func() (Extractor, error)
	logger       *zap.Logger
	now          func() time.Time

	window    time.Duration
	interval  time.Duration
	workers   int
	retention time.Duration
}

type Option func(*Detector)

func WithWindow(d time.Duration) Option   { return func(det *Detector) { det.window = d } }
func WithInterval(d time.Duration) Option { return func(det *Detector) { det.interval = d } }
func WithWorkers(n int) Option            { return func(det *Detector) { det.workers = n } }

// WithRetention makes every pass purge log rows older than maxAge.
func WithRetention(maxAge time.Duration) Option {
	return func(det *Detector) { det.retention = maxAge }
}

func WithClock(now func() time.Time) Option { return func(det *Detector) { det.now = now } }

func New(cfg *config.Config, log ClickLog, api *mwapi.Client, newExtractor func() (Extractor, error), logger *zap.Logger, opts ...Option) *Detector {
	d := &Detector{
		cfg:          cfg,
		log:          log,
		api:          api,
		newExtractor: newExtractor,
		logger:       logger.Named("fixed"),
		now:          time.Now,
		window:       DefaultWindow,
		interval:     DefaultInterval,
		workers:      DefaultWorkers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run checks for fixed snippets every interval until ctx is done.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce checks the clicks of the last window once and returns how many
// fixed snippets it recorded.
func (d *Detector) RunOnce(ctx context.Context) (int, error) {
	if d.retention > 0 {
		n, err := d.log.PurgeOlderThan(ctx, d.retention)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			d.logger.Info("purged old log rows", zap.Int64("rows", n))
		}
	}

	clicks, err := d.log.RecentClicks(ctx, d.cfg.LangCode, d.now().Add(-d.window))
	if err != nil {
		return 0, err
	}
	byTitle := make(map[string][]stats.Click)
	for _, c := range clicks {
		byTitle[c.Title] = append(byTitle[c.Title], c)
	}
	titles := make([]string, 0, len(byTitle))
	for t := range byTitle {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	d.logger.Info("checking clicked articles", zap.Int("clicks", len(clicks)), zap.Int("articles", len(titles)))

	var found atomic.Int64
	queue := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, t := range titles {
			select {
			case queue <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			ex, err := d.newExtractor()
			if err != nil {
				return err
			}
			for title := range queue {
				n, err := d.checkArticle(gctx, ex, title, byTitle[title])
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					d.logger.Warn("failed to check article", zap.String("title", title), zap.Error(err))
					continue
				}
				found.Add(int64(n))
			}
			return nil
		})
	}
	err = g.Wait()
	return int(found.Load()), err
}

// checkArticle walks the revisions of title made since its earliest click
// and records each clicked snippet as fixed by the first revision, made
// after the click, that no longer contains it.
func (d *Detector) checkArticle(ctx context.Context, ex Extractor, title string, clicks []stats.Click) (int, error) {
	pending := make(map[string]stats.Click, len(clicks))
	start := clicks[0].Time
	for _, c := range clicks {
		if prev, ok := pending[c.SnippetID]; !ok || c.Time.Before(prev.Time) {
			pending[c.SnippetID] = c
		}
		if c.Time.Before(start) {
			start = c.Time
		}
	}

	it := d.api.Query(url.Values{
		"titles":  {title},
		"prop":    {"revisions"},
		"rvprop":  {"content|timestamp|ids"},
		"rvslots": {"main"},
		"rvdir":   {"newer"},
		"rvstart": {start.UTC().Format(time.RFC3339)},
		"rvlimit": {"50"},
	})
	defer it.Close()

	found := 0
	for len(pending) > 0 {
		resp, ok, err := it.Next(ctx)
		if err != nil {
			return found, err
		}
		if !ok {
			break
		}
		for _, page := range mwapi.Pages(resp) {
			for _, rev := range mwapi.Revisions(page) {
				n, err := d.checkRevision(ctx, ex, title, rev, pending)
				if err != nil {
					return found, err
				}
				found += n
			}
		}
	}
	return found, nil
}

func (d *Detector) checkRevision(ctx context.Context, ex Extractor, title string, rev mwapi.Revision, pending map[string]stats.Click) (int, error) {
	revTime, ok := rev.Timestamp()
	if !ok || len(pending) == 0 {
		return 0, nil
	}
	snippets, err := ex.Extract(ctx, mwapi.RevisionContent(rev))
	if err != nil {
		return 0, err
	}
	present := make(map[string]bool, len(snippets))
	for _, s := range snippets {
		present[snippet.ID(title, s.HTML)] = true
	}

	found := 0
	for id, click := range pending {
		if present[id] || !click.Time.Before(revTime) {
			continue
		}
		inserted, err := d.log.AddFixed(ctx, stats.Fixed{
			ClickedAt:      click.Time,
			SnippetID:      id,
			Lang:           d.cfg.LangCode,
			RevID:          rev.ID(),
			IntersectionID: click.IntersectionID,
		})
		if err != nil {
			return found, err
		}
		delete(pending, id)
		if inserted {
			found++
			d.logger.Info("snippet fixed",
				zap.String("snippet_id", id),
				zap.String("title", title),
				zap.Int("rev_id", rev.ID()))
		}
	}
	return found, nil
}
