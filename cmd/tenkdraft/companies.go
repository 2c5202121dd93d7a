package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finlegal/tenkdraft/config"
)

func companiesCMD() *cobra.Command {
	var cfgPath string
	var companies = &cobra.Command{
		Use:   "companies",
		Short: "List companies available for drafting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			for _, c := range cfg.Companies {
				fmt.Printf("%-6s %s (CIK %s)\n", c.Ticker, c.Name, c.CIK)
			}
			return nil
		},
	}
	companies.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return companies
}
