package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/snippethunt/internal/fixed"
	"github.com/deidaraiorek/snippethunt/internal/stats"
)

func newFixwatchCmd() *cobra.Command {
	var (
		once    bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "fixwatch",
		Short: "Record snippets that were fixed after being clicked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext()
			defer cancel()

			sink, err := stats.Open(a.settings.StatsDBPath, a.logger)
			if err != nil {
				return err
			}
			defer sink.Close()

			api := a.newAPI()
			templates, err := a.templates(ctx, api)
			if err != nil {
				return err
			}

			opts := []fixed.Option{
				fixed.WithInterval(a.settings.FixedInterval),
				fixed.WithWorkers(workers),
			}
			if days := a.cfg.StatsMaxAgeDays; days > 0 {
				opts = append(opts, fixed.WithRetention(time.Duration(days)*24*time.Hour))
			}
			det := fixed.New(a.cfg, sink, api, func() (fixed.Extractor, error) {
				ex, _, err := a.newExtractor(templates)
				if err != nil {
					return nil, err
				}
				return ex, nil
			}, a.logger, opts...)

			if once {
				n, err := det.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d snippets fixed\n", n)
				return nil
			}
			return det.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	cmd.Flags().IntVar(&workers, "workers", fixed.DefaultWorkers, "Articles checked in parallel")
	return cmd
}
