package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/scheduler"
	"github.com/deidaraiorek/snippethunt/internal/snippet"
)

var percentiles = []float64{50, 75, 90, 95, 99}

func newParseLiveCmd() *cobra.Command {
	var (
		workers  int
		timeout  time.Duration
		maxPages int
		keep     bool
	)

	cmd := &cobra.Command{
		Use:   "parse-live",
		Short: "Extract snippets from every unsourced article into the scratch database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext()
			defer cancel()

			if workers <= 0 {
				workers = a.settings.Workers
			}
			if timeout == 0 {
				timeout = a.settings.PoolTimeout
			}

			rep, err := a.openReplica()
			if err != nil {
				return err
			}
			defer rep.Close()

			templates, err := a.templates(ctx, a.newAPI())
			if err != nil {
				return err
			}
			pageIDs, err := rep.UnsourcedPageIDs(ctx, templates)
			if err != nil {
				return err
			}
			if maxPages > 0 && len(pageIDs) > maxPages {
				pageIDs = pageIDs[:maxPages]
			}

			path := a.settings.ScratchDBPath
			if !keep {
				for _, suffix := range []string{"", "-wal", "-shm"} {
					if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
						return fmt.Errorf("failed to remove old scratch database: %w", err)
					}
				}
			}
			store, err := a.openStore(path)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SetMetadata(ctx, "lang_code", a.cfg.LangCode); err != nil {
				return err
			}

			sched := scheduler.New(store, func(n int) (scheduler.Processor, error) {
				ex, api, err := a.newExtractor(templates)
				if err != nil {
					return nil, err
				}
				return scheduler.NewArticleProcessor(a.cfg, api, ex, a.logger.With(zap.Int("worker", n))), nil
			}, &scheduler.Config{
				Workers: workers,
				Timeout: timeout,
			}, a.logger)

			a.logger.Info("parsing live articles",
				zap.Int("pages", len(pageIDs)),
				zap.Int("workers", workers),
				zap.String("db", path))
			res, runErr := sched.Run(ctx, pageIDs)
			printRunSummary(cmd.OutOrStdout(), len(pageIDs), res)
			return runErr
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Number of extraction workers (default SH_WORKERS)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop extracting after this long (default SH_POOL_TIMEOUT)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Only process this many pages")
	cmd.Flags().BoolVar(&keep, "keep", false, "Add to the existing scratch database instead of starting over")

	return cmd
}

func printRunSummary(w io.Writer, pages int, res scheduler.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("parse-live")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"pages", pages},
		{"batches", res.Batches},
		{"failed batches", res.Failed},
		{"articles", res.Articles},
		{"snippets", res.Snippets},
		{"truncated", res.Truncated},
		{"timed out", res.TimedOut},
	})
	t.Render()

	if res.Stats == nil || res.Stats.Total() == 0 {
		return
	}
	printPercentiles(w, res.Stats)
}

func printPercentiles(w io.Writer, stats *snippet.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("snippet length (%d samples)", stats.Total()))
	header := table.Row{}
	row := table.Row{}
	for _, p := range percentiles {
		header = append(header, fmt.Sprintf("p%g", p))
		row = append(row, stats.Percentile(p))
	}
	t.AppendHeader(header)
	t.AppendRow(row)
	t.Render()
}
