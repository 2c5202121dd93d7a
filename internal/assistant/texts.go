package assistant

import (
	"fmt"
	"strings"

	"github.com/finlegal/tenkdraft/models"
)

const systemPrompt = `You are a helpful legal assistant specializing in SEC Form 10-K filings.
You help securities lawyers and finance professionals draft Business and MD&A sections.

Your communication style should be:
- Clear and professional
- Business-friendly (avoid technical AI/ML jargon)
- Patient and helpful like a human legal assistant
- Structured and organized in your questions

When collecting financial data:
- Ask clear, specific questions
- Accept data in any format (tables, plain text, pasted statements)
- Confirm understanding of provided data
- Be helpful in organizing the information`

var financialInputs = []string{
	"Total revenue and year-over-year growth rate",
	"Revenue breakdown by segment or product line",
	"Operating income/loss and operating margin",
	"Net income/loss",
	"Adjusted EBITDA (if applicable)",
	"Free cash flow",
	"Cash and cash equivalents balance",
	"Total debt balance",
	"Major capital expenditures",
}

var businessInputs = []string{
	"New products or services launched in the fiscal year",
	"Products or services discontinued",
	"Market expansions or new geographic entries",
	"Major partnerships or joint ventures",
	"Key acquisitions or divestitures",
}

var operationalInputs = []string{
	"Changes in pricing or business model",
	"Changes in operational policies",
	"Significant operational events (e.g., outages, incidents)",
	"Regulatory actions or legal proceedings",
	"Key risk factors that emerged during the year",
}

func (a *Assistant) greeting() string {
	var b strings.Builder
	b.WriteString(`Hello! I'm your 10-K filing assistant. I can help you draft the Business (Item 1) and MD&A (Item 7) sections for SEC Form 10-K filings.

I have access to prior year 10-K filings for these companies:
`)
	for _, c := range a.companies {
		fmt.Fprintf(&b, "- **%s** - %s\n", c.Ticker, c.Name)
	}
	b.WriteString(`
**How to get started:**
Simply tell me which company's 10-K you'd like to work on, for example:
- "Generate the Business and MD&A sections for NVIDIA's 2024 Form 10-K"
- "Help me draft the 10-K for Microsoft"

Which company would you like to start with?`)
	return b.String()
}

func (a *Assistant) askForCompany() string {
	var b strings.Builder
	b.WriteString("I'd be happy to help! Which company's 10-K filing would you like to work on?\n\nAvailable companies:\n")
	for _, c := range a.companies {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Ticker, c.Name)
	}
	b.WriteString("\nPlease specify the company ticker or name.")
	return b.String()
}

func (a *Assistant) unknownCompany() string {
	tickers := make([]string, len(a.companies))
	for i, c := range a.companies {
		tickers[i] = c.Ticker
	}
	return "I couldn't identify that company. Please specify one of the available companies: " +
		strings.Join(tickers, ", ") + "."
}

func askForYear(companyName string) string {
	return fmt.Sprintf(`Great! I'll help you with %s's Form 10-K.

What fiscal year would you like to generate the filing for?
(For example: 2024, 2023)`, companyName)
}

// clarifyingQuestions lists the data needed to draft a complete MD&A.
func clarifyingQuestions(ticker, fiscalYear string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To complete the MD&A section for %s's Form 10-K for fiscal year %s, I need the following information:\n\n", ticker, fiscalYear)

	b.WriteString("**Financial Data Required:**\n")
	for _, item := range financialInputs {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\n**Business Updates:**\n")
	for _, item := range businessInputs {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\n**Operational Information:**\n")
	for _, item := range operationalInputs {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString(`
You can provide this information in any format:
- Plain text with numbers
- Markdown table
- Pasted financial statements

Which of these would you like to provide first?`)
	return b.String()
}

const completionFooter = `

---

The draft sections are now complete. Would you like me to:
1. **Revise** any specific part of the Business or MD&A sections?
2. **Add more detail** to any subsection?
3. **Incorporate additional data** you'd like to provide?
4. **Generate for a different company**?

Please let me know how I can help further.`

func sectionHeading(section string) string {
	if section == models.SectionMDA || section == "mda" {
		return "## Item 7. Management's Discussion and Analysis of Financial Condition and Results of Operations (Draft)"
	}
	return "## Item 1. Business (Draft)"
}
