package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Index the handbook and report the stored chunk count",
		Long:  "Index the handbook into the configured vector store. With VECTOR_STORE=sqlite the index survives the process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, cfg, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.Responder.Reinitialize(ctx); err != nil {
				return err
			}
			n, err := a.Indexer.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks into %s store\n", n, cfg.VectorStore)
			return nil
		},
	}
}
