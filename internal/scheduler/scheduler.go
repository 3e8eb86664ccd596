// Package scheduler runs the extraction worker pool. Workers pull batches
// of page ids from a shared frontier and fan their results in to a single
// receiver, the only goroutine that writes to the store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deidaraiorek/snippethunt/internal/snippet"
	"github.com/deidaraiorek/snippethunt/internal/storage"
)

const (
	DefaultBatchSize              = 32
	DefaultMaxExceptionsPerWorker = 5
)

// ErrTooManyExceptions aborts a run when one worker fails too many batches.
var ErrTooManyExceptions = errors.New("too many exceptions")

var batches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "snippethunt_scheduler_batches_total",
		Help: "Page id batches processed by the worker pool, by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(batches)
}

type Config struct {
	Workers                int
	BatchSize              int
	MaxExceptionsPerWorker int
	Timeout                time.Duration // zero means no limit
}

// Saver persists one batch worth of articles.
type Saver interface {
	SaveArticles(ctx context.Context, articles []storage.ArticleSnippets) (storage.SaveResult, error)
}

// Result summarises a run.
type Result struct {
	Batches   int
	Failed    int
	Articles  int
	Snippets  int
	Truncated int
	TimedOut  bool
	Stats     *snippet.Stats
}

type Scheduler struct {
	config       *Config
	store        Saver
	newProcessor ProcessorFactory
	logger       *zap.Logger

	mu     sync.Mutex
	result Result
}

func New(store Saver, newProcessor ProcessorFactory, config *Config, logger *zap.Logger) *Scheduler {
	if config.Workers == 0 {
		config.Workers = 1
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.MaxExceptionsPerWorker == 0 {
		config.MaxExceptionsPerWorker = DefaultMaxExceptionsPerWorker
	}
	return &Scheduler{
		config:       config,
		store:        store,
		newProcessor: newProcessor,
		logger:       logger.Named("scheduler"),
	}
}

// Run processes pageIDs and blocks until every batch is done, the timeout
// expires or a worker gives up. A timeout is not an error: batches already
// extracted are saved and Result.TimedOut is set.
func (s *Scheduler) Run(ctx context.Context, pageIDs []int) (Result, error) {
	f := newFrontier(pageIDs, s.config.BatchSize)
	s.result = Result{Stats: snippet.NewStats()}
	s.logger.Info("starting worker pool",
		zap.Int("workers", s.config.Workers),
		zap.Int("pages", len(pageIDs)),
		zap.Duration("timeout", s.config.Timeout))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	workCtx := runCtx
	if s.config.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		workCtx, cancelTimeout = context.WithTimeout(runCtx, s.config.Timeout)
		defer cancelTimeout()
	}

	results := make(chan []storage.ArticleSnippets, s.config.Workers)
	received := make(chan error, 1)
	go func() {
		err := s.receive(runCtx, results)
		if err != nil {
			cancel()
		}
		received <- err
	}()

	g, gctx := errgroup.WithContext(workCtx)
	for i := 0; i < s.config.Workers; i++ {
		g.Go(func() error {
			return s.worker(gctx, i, f, results)
		})
	}
	werr := g.Wait()
	close(results)
	rerr := <-received

	s.mu.Lock()
	res := s.result
	s.mu.Unlock()
	if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		s.logger.Warn("timeout, abandoning outstanding batches", zap.Int("pages_left", f.size()))
	}

	if err := errors.Join(werr, rerr); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	s.logger.Info("worker pool done",
		zap.Int("batches", res.Batches),
		zap.Int("failed", res.Failed),
		zap.Int("articles", res.Articles),
		zap.Int("snippets", res.Snippets),
		zap.Int("truncated", res.Truncated))
	return res, nil
}

func (s *Scheduler) worker(ctx context.Context, n int, f *frontier, results chan<- []storage.ArticleSnippets) error {
	p, err := s.newProcessor(n)
	if err != nil {
		return fmt.Errorf("worker %d: %w", n, err)
	}
	if st, ok := p.(interface{ Stats() *snippet.Stats }); ok {
		defer func() { s.result.Stats.Merge(st.Stats()) }()
	}

	exceptions := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		batch, ok := f.next()
		if !ok {
			return nil
		}

		articles, err := p.Process(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			exceptions++
			batches.WithLabelValues("error").Inc()
			s.mu.Lock()
			s.result.Failed++
			s.mu.Unlock()
			s.logger.Warn("batch failed",
				zap.Int("worker", n),
				zap.Ints("page_ids", batch),
				zap.Int("exceptions", exceptions),
				zap.Error(err))
			if exceptions > s.config.MaxExceptionsPerWorker {
				return fmt.Errorf("worker %d: %w: %w", n, ErrTooManyExceptions, err)
			}
			continue
		}
		batches.WithLabelValues("ok").Inc()

		select {
		case results <- articles:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scheduler) receive(ctx context.Context, results <-chan []storage.ArticleSnippets) error {
	var failed error
	for articles := range results {
		s.mu.Lock()
		s.result.Batches++
		s.mu.Unlock()
		if failed != nil || len(articles) == 0 {
			continue
		}

		saved, err := s.store.SaveArticles(ctx, articles)
		if err != nil {
			// Keep draining so workers blocked on send can exit.
			failed = fmt.Errorf("failed to save batch: %w", err)
			continue
		}
		s.mu.Lock()
		s.result.Articles += saved.Articles
		s.result.Snippets += saved.Snippets
		s.result.Truncated += saved.Truncated
		s.mu.Unlock()
	}
	return failed
}
