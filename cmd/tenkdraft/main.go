package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:   "tenkdraft",
		Short: "SEC 10-K drafting assistant",
	}

	root.AddCommand(serveCMD(), chatCMD(), companiesCMD(), generateCMD(),
		downloadCMD(), indexCMD(), migrateCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
