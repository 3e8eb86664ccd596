package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deidaraiorek/snippethunt/internal/snippet"
)

type pageSnippet struct {
	ID      string `json:"id"`
	Section string `json:"section"`
	HTML    string `json:"html"`
}

func newParsePageCmd() *cobra.Command {
	var (
		asJSON      bool
		noRedirects bool
	)

	cmd := &cobra.Command{
		Use:   "parse-page TITLE",
		Short: "Extract the snippets of a single article and print them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := signalContext()
			defer cancel()

			title := strings.Join(args, " ")
			templates := a.cfg.CitationNeededTemplates
			if !noRedirects {
				if templates, err = a.templates(ctx, a.newAPI()); err != nil {
					return err
				}
			}
			ex, api, err := a.newExtractor(templates)
			if err != nil {
				return err
			}
			text, err := api.GetPageContents(ctx, title, 0)
			if err != nil {
				return err
			}
			snippets, err := ex.Extract(ctx, text)
			if err != nil {
				return err
			}

			out := make([]pageSnippet, len(snippets))
			for i, s := range snippets {
				out[i] = pageSnippet{
					ID:      snippet.ID(title, s.HTML),
					Section: s.Section,
					HTML:    s.HTML,
				}
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for _, s := range out {
				fmt.Fprintf(w, "%s [%s]\n%s\n\n", s.ID, s.Section, s.HTML)
			}
			fmt.Fprintf(w, "%d snippets\n", len(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&noRedirects, "no-redirects", false, "Do not resolve template redirects")
	return cmd
}
