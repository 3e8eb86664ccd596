package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/indexer"
	"github.com/deidaraiorek/snippethunt/internal/petscan"
	"github.com/deidaraiorek/snippethunt/internal/stats"
	"github.com/deidaraiorek/snippethunt/internal/web"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve snippets, search, intersections and stats over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext()
			defer cancel()

			if addr == "" {
				addr = a.settings.HTTPAddr
			}

			store, err := a.openStore(a.settings.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()
			sink, err := stats.Open(a.settings.StatsDBPath, a.logger)
			if err != nil {
				return err
			}
			defer sink.Close()

			lists := petscan.New(petscan.Options{
				PetScanURL:      a.cfg.PetscanURL,
				PetScanTimeout:  time.Duration(a.cfg.PetscanTimeoutS) * time.Second,
				PagePileURL:     a.cfg.PagepileURL,
				PagePileTimeout: time.Duration(a.cfg.PagepileTimeoutS) * time.Second,
				UserAgent:       a.cfg.UserAgent,
			}, a.logger)
			ix := indexer.New(a.cfg, store, a.logger,
				indexer.WithTitleResolver(indexer.NewAPITitleResolver(a.newAPI())),
				indexer.WithPageLister(lists))

			var opts []web.Option
			if a.settings.ReplicaDSN != "" {
				rep, err := a.openReplica()
				if err != nil {
					return err
				}
				defer rep.Close()
				opts = append(opts, web.WithUserSource(rep))
			} else {
				a.logger.Warn("no replica configured, leaderboard disabled")
			}

			srv := web.New(a.cfg, store, sink, ix, a.logger, opts...)
			a.logger.Info("serving", zap.String("db", a.settings.DBPath))
			return srv.ListenAndServe(ctx, addr, a.settings.ShutdownPeriod)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default SH_HTTP_ADDR)")
	return cmd
}
