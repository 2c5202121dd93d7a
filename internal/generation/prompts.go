package generation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/finlegal/tenkdraft/models"
)

// Rough chars-per-token ratio used to convert the model's token budget into
// a character budget for the context block.
const charsPerToken = 4

const businessPromptTemplate = `You are a securities lawyer assistant helping to draft SEC Form 10-K filings.

Based on the following context from prior 10-K filings, generate an updated "Item 1. Business" section for %s's Form 10-K for fiscal year %s.

CONTEXT FROM PRIOR FILINGS:
%s
%s
INSTRUCTIONS:
1. Write in the formal, objective tone expected in SEC filings
2. Structure the section with appropriate subsections (e.g., Overview, Products/Services, Markets, Competition, etc.)
3. Base your content on the retrieved context - do NOT hallucinate facts or figures
4. When using information from a specific source, include the source number in brackets, e.g., [Source 1]
5. If you need to reference specific numbers or metrics, clearly indicate they are from prior year filings
6. Keep the narrative factual and compliant with SEC disclosure requirements

Generate the Item 1. Business section:`

const mdaPromptTemplate = `You are a securities lawyer assistant helping to draft SEC Form 10-K filings.

Based on the following context from prior 10-K filings and user-provided financial data, generate an updated "Item 7. Management's Discussion and Analysis of Financial Condition and Results of Operations" (MD&A) section for %s's Form 10-K for fiscal year %s.

CONTEXT FROM PRIOR FILINGS:
%s
%s%s
INSTRUCTIONS:
1. Write in the formal, objective tone expected in SEC filings
2. Structure the MD&A with standard subsections:
   - Overview
   - Results of Operations (include segment breakdowns if provided)
   - Liquidity and Capital Resources
   - Critical Accounting Estimates (if applicable)
3. IMPORTANT: Use the user-provided financial data as the primary source for current year figures
4. Compare current year performance to prior year where appropriate
5. When citing information from prior filings, include the source number in brackets, e.g., [Source 1]
6. Explain drivers of performance changes based on business and operational inputs
7. Do NOT hallucinate financial figures - only use what is provided or clearly labeled as prior year data
8. If critical data is missing, note what would typically be included
9. Incorporate any business updates (new products, acquisitions, market expansions) into the narrative
10. Address any operational changes or events mentioned by the user

Generate the Item 7. MD&A section:`

// formatPassages numbers retrieved passages [Source N] in retrieval order and
// trims the block to fit the character budget. A passage that would overflow
// the budget is truncated; later ones are dropped entirely.
func formatPassages(hits []models.SearchHit, budget int) string {
	if len(hits) == 0 {
		return "(no prior filing passages were retrieved)"
	}
	var parts []string
	used := 0
	for i, h := range hits {
		header := fmt.Sprintf("[Source %d] (%s - %s - Filed: %s)",
			i+1, h.Chunk.CompanyName, h.Chunk.SectionName, h.Chunk.FilingDate)
		body := h.Chunk.Text
		if budget > 0 {
			remaining := budget - used - len(header)
			if remaining <= 100 {
				break
			}
			if len(body) > remaining {
				body = body[:remaining]
			}
		}
		part := header + "\n" + body
		parts = append(parts, part)
		used += len(part)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// formatFinancialData renders user-provided data for the prompt, one line per
// parsed metric, with the raw input appended for the model to mine.
func formatFinancialData(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		if k != "raw_input" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\nFINANCIAL AND BUSINESS DATA PROVIDED BY USER:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, data[k])
	}
	if raw, ok := data["raw_input"]; ok {
		fmt.Fprintf(&b, "\nRaw user input (extract any additional relevant data):\n%s\n", raw)
	}
	return b.String()
}

func formatAdditionalContext(ctx string) string {
	if strings.TrimSpace(ctx) == "" {
		return ""
	}
	return "\nADDITIONAL CONTEXT:\n" + ctx + "\n"
}

func buildBusinessPrompt(company, fiscalYear string, hits []models.SearchHit, additional string, tokenBudget int) string {
	return fmt.Sprintf(businessPromptTemplate, company, fiscalYear,
		formatPassages(hits, tokenBudget*charsPerToken), formatAdditionalContext(additional))
}

func buildMDAPrompt(company, fiscalYear string, hits []models.SearchHit, data map[string]string, additional string, tokenBudget int) string {
	return fmt.Sprintf(mdaPromptTemplate, company, fiscalYear,
		formatPassages(hits, tokenBudget*charsPerToken), formatFinancialData(data), formatAdditionalContext(additional))
}
