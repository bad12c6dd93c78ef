package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/corpus"
	srv "github.com/mohammad-safakhou/sopguard/internal/server"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

// seedCMD writes the bundled sample deviations and indexes them as incident samples.
func seedCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write sample deviation records and index them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			written, err := corpus.EnsureSamples(cfg.Corpus.SampleDir)
			if err != nil {
				return err
			}
			app, err := srv.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			report, err := app.Ingester.IngestDir(cmd.Context(), vectorstore.IncidentSample, cfg.Corpus.SampleDir, []string{".txt"})
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d sample(s); stored %d chunk(s) from %d document(s)\n", written, report.Stored, report.Documents)
			return nil
		},
	}
}
