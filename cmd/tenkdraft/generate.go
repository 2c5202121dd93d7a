package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/analysis"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/models"
)

func generateCMD() *cobra.Command {
	var cfgPath string
	var outPath string
	var dataPairs []string
	var extraContext string

	var generate = &cobra.Command{
		Use:   "generate <ticker> <fiscal-year>",
		Short: "Draft the Business section (and MD&A when financial data is given)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			company, ok := cfg.Company(args[0])
			if !ok {
				return fmt.Errorf("unknown ticker %q (see `tenkdraft companies`)", args[0])
			}
			fiscalYear := args[1]

			financialData, err := parseDataPairs(dataPairs)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pipeline, _, _, err := localPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			sessionID := "cli-" + uuid.NewString()

			business, err := pipeline.Generate(ctx, generation.Request{
				SessionID:         sessionID,
				Ticker:            company.Ticker,
				CompanyName:       company.Name,
				FiscalYear:        fiscalYear,
				Section:           generation.SectionBusiness,
				AdditionalContext: extraContext,
			})
			if err != nil {
				return err
			}

			var mda *models.GenerationOutput
			if len(financialData) > 0 {
				mda, err = pipeline.Generate(ctx, generation.Request{
					SessionID:     sessionID,
					Ticker:        company.Ticker,
					CompanyName:   company.Name,
					FiscalYear:    fiscalYear,
					Section:       generation.SectionMDA,
					FinancialData: financialData,
				})
				if err != nil {
					return err
				}
			}

			doc := renderDocument(company, fiscalYear, business, mda)
			if outPath == "" {
				fmt.Print(doc)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			fmt.Printf("Wrote %s\n", outPath)
			return nil
		},
	}
	generate.Flags().StringVarP(&outPath, "output", "o", "", "write the draft to a file instead of stdout")
	generate.Flags().StringArrayVar(&dataPairs, "data", nil, "financial data as key=value (repeatable; use \"Revenue (Prior Year)=...\" for comparisons)")
	generate.Flags().StringVar(&extraContext, "context", "", "additional drafting context")
	generate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return generate
}

func parseDataPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --data %q, expected key=value", p)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, nil
}

func renderDocument(company models.Company, fiscalYear string, business, mda *models.GenerationOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — Form 10-K Draft (FY %s)\n\n", company.Name, fiscalYear)

	b.WriteString("## Item 1. Business\n\n")
	b.WriteString(business.Text)
	b.WriteString(business.References)
	b.WriteString("\n\n")
	b.WriteString(analysis.FormatConfidenceIndicator(business.Confidence))

	if mda != nil {
		b.WriteString("\n\n## Item 7. Management's Discussion and Analysis\n\n")
		b.WriteString(mda.Text)
		if mda.YoYTable != "" {
			b.WriteString("\n\n")
			b.WriteString(mda.YoYTable)
		}
		b.WriteString(mda.References)
		b.WriteString("\n\n")
		b.WriteString(analysis.FormatConfidenceIndicator(mda.Confidence))
	}
	b.WriteString("\n")
	return b.String()
}
