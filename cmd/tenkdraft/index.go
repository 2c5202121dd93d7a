package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/filingstore"
	"github.com/finlegal/tenkdraft/internal/index"
	srv "github.com/finlegal/tenkdraft/internal/server"
	"github.com/finlegal/tenkdraft/provider"
)

func indexCMD() *cobra.Command {
	var cfgPath string
	var noEmbed bool
	var indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Build the retrieval index from cached filings and report stats",
		Long: `Builds the in-memory retrieval index exactly as the server does at startup,
then reports what was indexed. Useful for checking cached filings and the
embedding provider before serving.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			var embedder index.Embedder
			if !noEmbed {
				prov, err := provider.NewProvider(cfg.LLM)
				if err != nil {
					return err
				}
				embedder = prov
			}

			filings, err := filingstore.New(cfg.Storage.FilingsDir())
			if err != nil {
				return err
			}
			tickers, err := filings.List()
			if err != nil {
				return err
			}
			if len(tickers) == 0 {
				return fmt.Errorf("no cached filings in %s, run `tenkdraft download --all` first", cfg.Storage.FilingsDir())
			}

			ix, err := index.New(embedder)
			if err != nil {
				return err
			}
			if err := srv.BuildIndex(cmd.Context(), ix, filings); err != nil {
				return err
			}
			fmt.Printf("Indexed %d filings (%d chunks): %v\n", len(tickers), ix.Size(), tickers)
			return nil
		},
	}
	indexCmd.Flags().BoolVar(&noEmbed, "no-embed", false, "skip embeddings, keyword index only")
	indexCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return indexCmd
}
