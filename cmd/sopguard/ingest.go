package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/corpus"
	srv "github.com/mohammad-safakhou/sopguard/internal/server"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

func ingestCMD(cfgPath *string) *cobra.Command {
	var namespace string
	var dir string
	var ingest = &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store a directory of documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ns, err := vectorstore.ParseNamespace(namespace)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Corpus.SOPDir
				if ns == vectorstore.IncidentSample {
					dir = cfg.Corpus.SampleDir
				}
			}
			app, err := srv.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			report, err := app.Ingester.IngestDir(cmd.Context(), ns, dir, corpus.DocumentExtensions)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", dir, err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	ingest.Flags().StringVarP(&namespace, "namespace", "n", string(vectorstore.Reference), "reference or incident-sample")
	ingest.Flags().StringVar(&dir, "dir", "", "source directory (defaults to the configured corpus dir)")
	return ingest
}
