package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/edgar"
	"github.com/finlegal/tenkdraft/internal/filingstore"
	"github.com/finlegal/tenkdraft/models"
)

func downloadCMD() *cobra.Command {
	var cfgPath string
	var all bool
	var download = &cobra.Command{
		Use:   "download [ticker...]",
		Short: "Download the latest 10-K filings from SEC EDGAR",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if len(args) == 0 && !all {
				return fmt.Errorf("specify tickers or --all")
			}

			var companies []models.Company
			if all {
				companies = cfg.Companies
			} else {
				for _, arg := range args {
					company, ok := cfg.Company(arg)
					if !ok {
						return fmt.Errorf("unknown ticker %q (see `tenkdraft companies`)", arg)
					}
					companies = append(companies, company)
				}
			}

			filings, err := filingstore.New(cfg.Storage.FilingsDir())
			if err != nil {
				return err
			}
			client := edgar.NewClient(cfg.EDGAR)

			ctx := cmd.Context()
			var failed int
			for _, company := range companies {
				fmt.Printf("Downloading %s (%s)...\n", company.Ticker, company.Name)
				filing, err := client.Download(ctx, company)
				if err != nil {
					fmt.Printf("  failed: %v\n", err)
					failed++
					continue
				}
				if err := filings.Save(filing); err != nil {
					return err
				}
				fmt.Printf("  saved filing dated %s (%d sections, hash %s)\n",
					filing.FilingDate, len(filing.Sections), filing.ContentHash)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(companies))
			}
			return nil
		},
	}
	download.Flags().BoolVar(&all, "all", false, "download every configured company")
	download.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return download
}
