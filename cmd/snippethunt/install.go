package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/snippethunt/internal/storage"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Replace the live database with the scratch one",
		Long: "install checks that the scratch database is large enough, archives the\n" +
			"live database, prunes old archives and moves the scratch database in place.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext()
			defer cancel()

			store, err := a.openStore(a.settings.ScratchDBPath)
			if err != nil {
				return err
			}
			// Install closes the store.
			err = store.Install(ctx, storage.InstallOptions{
				LivePath:    a.settings.DBPath,
				ArchiveDir:  a.cfg.ArchiveDir,
				ArchiveDays: a.cfg.ArchiveDurationDays,
				MinSnippets: a.cfg.MinSnippetsSanityCheck,
				MinArticles: a.cfg.MinArticlesSanityCheck,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", a.settings.DBPath)
			return nil
		},
	}
	return cmd
}
