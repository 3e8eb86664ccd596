package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/snippethunt/internal/indexer"
)

func newUpdateIntersectionsCmd() *cobra.Command {
	var dbPath, previous string

	cmd := &cobra.Command{
		Use:   "update-intersections",
		Short: "Carry live intersections over and drop expired ones",
		Long: "update-intersections imports the unexpired intersections of the live\n" +
			"database into the scratch one, drops memberships of articles that are\n" +
			"gone and rebuilds the intersection rings.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext()
			defer cancel()

			if dbPath == "" {
				dbPath = a.settings.ScratchDBPath
			}
			if previous == "" && dbPath != a.settings.DBPath {
				previous = a.settings.DBPath
			}
			store, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := indexer.New(a.cfg, store, a.logger).UpdateIntersections(ctx, previous)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d intersections, %d kept\n", res.Imported, res.Kept)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database to update (default the scratch database)")
	cmd.Flags().StringVar(&previous, "previous", "", "Database to import intersections from (default the live database)")
	return cmd
}
