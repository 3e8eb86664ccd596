package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deidaraiorek/snippethunt/internal/indexer"
)

func newAssignCategoriesCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "assign-categories",
		Short: "Group the extracted articles into categories and link their snippets",
		Args:  cobra.NoArgs,
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
			rep, err := a.openReplica()
			if err != nil {
				return err
			}
			defer rep.Close()
			store, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := indexer.New(a.cfg, store, a.logger).AssignCategories(ctx, rep)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Hidden", "Usable", "Kept", "Memberships"})
			t.AppendRow(table.Row{res.Hidden, res.Usable, res.Kept, res.Memberships})
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Database to index (default the scratch database)")
	return cmd
}
