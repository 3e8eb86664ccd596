// Package indexer builds the browsing structures over extracted snippets:
// categories, user-defined intersections and the rings that link their
// snippets together.
package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

type Indexer struct {
	cfg    *config.Config
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time

	titles TitleResolver
	lists  PageLister
}

type Option func(*Indexer)

// WithTitleResolver sets how intersections given by title find page ids.
func WithTitleResolver(r TitleResolver) Option {
	return func(ix *Indexer) { ix.titles = r }
}

// WithPageLister enables PetScan and PagePile intersections.
func WithPageLister(l PageLister) Option {
	return func(ix *Indexer) { ix.lists = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) { ix.now = now }
}

func New(cfg *config.Config, store *storage.Store, logger *zap.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		cfg:    cfg,
		store:  store,
		logger: logger.Named("indexer"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// UpdateIntersections carries the unexpired intersections of the database
// at previous over to the indexer's store and drops the empty ones. With an
// empty previous path, or the store's own path, it sweeps in place.
func (ix *Indexer) UpdateIntersections(ctx context.Context, previous string) (storage.SweepResult, error) {
	res, err := ix.store.SweepIntersections(ctx, previous, ix.now())
	if err != nil {
		return res, err
	}
	ix.logger.Info("updated intersections",
		zap.String("previous", previous),
		zap.Int("imported", res.Imported),
		zap.Int("kept", res.Kept))
	return res, nil
}
