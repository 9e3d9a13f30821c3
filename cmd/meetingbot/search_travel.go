package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/tools"
)

func newSearchTravelCommand(load loader) *cobra.Command {
	q := tools.TravelQuery{}

	cmd := &cobra.Command{
		Use:   "search-travel",
		Short: "Run the travel package search as the service role and print each step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.SupabaseServiceKey == "" {
				return errors.New("SUPABASE_SERVICE_KEY is required for search-travel")
			}
			resolver, err := newResolver(ctx, cfg)
			if err != nil {
				return err
			}
			docs, err := newDocumentStore(ctx, cfg, resolver)
			if err != nil {
				return err
			}
			defer docs.Close()

			embedder, err := newEmbedder(ctx, cfg, logger)
			if err != nil {
				return err
			}
			searcher := tools.NewTravelSearcher(embedder, logger)
			out := cmd.OutOrStdout()

			section(out, "Search parameters")
			if err := printJSON(out, q); err != nil {
				return err
			}

			section(out, "Embeddings")
			vectors, err := searcher.Embed(ctx, q)
			if err != nil {
				return err
			}
			inputs := q.Inputs()
			for i, v := range vectors.Ordered() {
				fmt.Fprintf(out, "%-22s %4d  %q\n", docstore.TravelFields[i], len(v), inputs[i])
			}

			section(out, "Results")
			retriever := docs.Bind(auth.ServiceIdentity(cfg.SupabaseServiceKey))
			packages, err := searcher.Search(ctx, retriever, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d package(s)\n", len(packages))
			return printJSON(out, packages)
		},
	}

	f := cmd.Flags()
	f.StringVar(&q.Location, "location", "beach vacation in Vietnam", "location preference")
	f.StringVar(&q.Duration, "duration", "5 days", "duration preference")
	f.StringVar(&q.Budget, "budget", "around $500", "budget preference")
	f.StringVar(&q.Transportation, "transportation", "comfortable travel", "transportation preference")
	f.StringVar(&q.Accommodation, "accommodation", "nice hotel", "accommodation preference")
	f.StringVar(&q.Food, "food", "local food", "food preference")
	f.StringVar(&q.Activities, "activities", "swimming, relaxing", "activities preference")
	f.StringVar(&q.Notes, "notes", "peaceful location", "additional notes")
	f.IntVar(&q.MatchCount, "match-count", 5, "number of packages to return")
	return cmd
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n== %s ==\n", title)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
