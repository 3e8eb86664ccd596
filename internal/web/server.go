// Package web serves snippets, category search, intersections and the
// request statistics of one language over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/config"
	"github.com/deidaraiorek/snippethunt/internal/indexer"
	"github.com/deidaraiorek/snippethunt/internal/search"
	"github.com/deidaraiorek/snippethunt/internal/stats"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

const (
	maxSearchResults       = 400
	defaultStatsDays       = 10
	defaultLeaderboardDays = 30
	maxDays                = 365
	leaderboardSize        = 50
	fixedWindow            = 24 * time.Hour
	searchIndexTTL         = time.Hour
	maxBodyBytes           = 1 << 20
)

// UserSource maps fixing revisions to the users who made them.
type UserSource interface {
	RevisionUsers(ctx context.Context, revIDs []int) ([]string, error)
}

type Server struct {
	cfg     *config.Config
	store   *storage.Store
	stats   *stats.Sink
	indexer *indexer.Indexer
	users   UserSource
	policy  *bluemonday.Policy
	logger  *zap.Logger
	now     func() time.Time
	router  chi.Router

	indexMu    sync.Mutex
	index      *search.Index
	indexBuilt time.Time
}

type Option func(*Server)

// WithUserSource enables the leaderboard.
func WithUserSource(u UserSource) Option {
	return func(s *Server) { s.users = u }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(cfg *config.Config, store *storage.Store, sink *stats.Sink, ix *indexer.Indexer, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		stats:   sink,
		indexer: ix,
		policy:  snippetPolicy(),
		logger:  logger.Named("web"),
		now:     time.Now,
		index:   search.NewIndex(cfg.LangCode),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// snippetPolicy keeps the markup snippets are rendered with, including the
// marker spans, and drops everything executable.
func snippetPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("span", "sup", "sub", "div")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[\w\- ]+$`)).Globally()
	p.AllowAttrs("dir", "lang").Globally()
	return p
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/{lang}", func(r chi.Router) {
		r.Use(s.checkLang)
		r.Use(s.logRequest)

		r.Get("/redirect", s.handleRedirect)
		r.Get("/snippets", s.handleRandomSnippet)
		r.Get("/snippets/{id}", s.handleSnippet)
		r.Get("/search/category", s.handleSearchCategory)
		r.Post("/intersection", s.handleCreateIntersection)
		r.Get("/api/snippets_in_articles", s.handleSnippetsInArticles)
		r.Get("/fixed", s.handleFixed)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownPeriod.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownPeriod time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr), zap.String("lang", s.cfg.LangCode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// categoryIndex returns the stemmed category index, rebuilding it from the
// store when it is older than searchIndexTTL.
func (s *Server) categoryIndex(ctx context.Context) (*search.Index, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if !s.indexBuilt.IsZero() && s.now().Sub(s.indexBuilt) < searchIndexTTL {
		return s.index, nil
	}
	cats, err := s.store.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}
	s.index.Rebuild(cats)
	s.indexBuilt = s.now()
	s.logger.Debug("rebuilt category index", zap.Int("categories", len(cats)))
	return s.index, nil
}
