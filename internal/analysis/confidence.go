package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/finlegal/tenkdraft/models"
)

// Confidence weights. Coverage dominates: a draft grounded in user-provided
// figures is worth more than one leaning on retrieval alone.
const (
	weightCoverage  = 0.5
	weightSimilar   = 0.3
	weightCitations = 0.2
)

// Required data fields per section, matched as keywords against provided data.
var (
	requiredFinancialFields = []string{
		"revenue", "growth", "operating income", "net income",
		"cash flow", "ebitda", "margin",
	}
	requiredBusinessFields = []string{
		"products", "services", "markets", "acquisitions", "partnerships",
	}
)

// ScoreConfidence grades a generated section on a 0-100 scale from three
// signals: coverage of the required data fields, mean retrieval score of the
// cited passages, and the fraction of retrieved passages actually cited.
// Holding the other signals fixed, more coverage never lowers the score.
func ScoreConfidence(data map[string]string, hits []models.SearchHit, citations []models.Citation, section string) models.ConfidenceScore {
	coverage := dataCoverage(data, section)
	similarity := avgCitedScore(hits, citations)
	density := citationDensity(hits, citations)

	overall := 100 * (weightCoverage*coverage + weightSimilar*similarity + weightCitations*density)
	overall = math.Round(overall*10) / 10

	return models.ConfidenceScore{
		Overall:         overall,
		Band:            band(overall),
		DataCoverage:    round2(coverage),
		SourceQuality:   round2(similarity),
		CitationDensity: round2(density),
		Reasoning:       reasoning(coverage, similarity, data),
	}
}

func band(overall float64) string {
	switch {
	case overall >= 80:
		return models.BandHigh
	case overall >= 60:
		return models.BandMedium
	default:
		return models.BandLow
	}
}

// dataCoverage measures how much of the section's required data the user
// provided. No data at all means a RAG-only draft and a flat 0.3.
func dataCoverage(data map[string]string, section string) float64 {
	if len(data) == 0 {
		return 0.3
	}

	var sb strings.Builder
	for k, v := range data {
		sb.WriteString(strings.ToLower(k))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(v))
		sb.WriteString(" ")
	}
	dataStr := sb.String()

	required := requiredBusinessFields
	if section == models.SectionMDA || section == "mda" {
		required = requiredFinancialFields
	}

	matched := 0
	for _, field := range required {
		if strings.Contains(dataStr, field) {
			matched++
		}
	}
	coverage := float64(matched) / float64(len(required))

	// Raw free-form input gives the model extra context to mine.
	if _, ok := data["raw_input"]; ok {
		coverage = clamp01(coverage + 0.2)
	}
	return clamp01(coverage + 0.3)
}

// avgCitedScore averages the retrieval similarity of the cited passages.
// Similarity, not the ranking score: fused RRF scores sit near 1/rrfK and
// would flatten the signal.
func avgCitedScore(hits []models.SearchHit, citations []models.Citation) float64 {
	var sum float64
	n := 0
	for _, c := range citations {
		if c.Unverified || c.SourceID < 1 || c.SourceID > len(hits) {
			continue
		}
		sum += clamp01(hits[c.SourceID-1].Similarity)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func citationDensity(hits []models.SearchHit, citations []models.Citation) float64 {
	if len(hits) == 0 {
		return 0
	}
	return clamp01(float64(VerifiedCount(citations)) / float64(len(hits)))
}

func reasoning(coverage, similarity float64, data map[string]string) string {
	var reasons []string

	switch {
	case coverage >= 0.8:
		reasons = append(reasons, "Comprehensive financial data provided")
	case coverage >= 0.5:
		reasons = append(reasons, "Partial financial data provided")
	default:
		reasons = append(reasons, "Limited financial data - some sections may be incomplete")
	}

	switch {
	case similarity >= 0.8:
		reasons = append(reasons, "Strong source coverage from prior filings")
	case similarity >= 0.5:
		reasons = append(reasons, "Adequate source coverage")
	default:
		reasons = append(reasons, "Limited source material available")
	}

	if len(data) > 0 {
		var sb strings.Builder
		for k, v := range data {
			sb.WriteString(strings.ToLower(k + " " + v + " "))
		}
		dataStr := sb.String()
		if strings.Contains(dataStr, "revenue") {
			reasons = append(reasons, "Revenue figures grounded in provided data")
		}
		if strings.Contains(dataStr, "growth") {
			reasons = append(reasons, "Growth metrics available for comparison")
		}
	}
	return strings.Join(reasons, "; ")
}

// FormatConfidenceIndicator renders the score as a markdown block appended to
// generated sections.
func FormatConfidenceIndicator(score models.ConfidenceScore) string {
	return fmt.Sprintf(`
---

**Confidence Assessment**

| Metric | Score |
|--------|-------|
| Overall Confidence | %s (%.0f/100) |
| Data Coverage | %.0f%% |
| Source Quality | %.0f%% |
| Citation Density | %.0f%% |

*%s*

---
`, score.Band, score.Overall, score.DataCoverage*100, score.SourceQuality*100, score.CitationDensity*100, score.Reasoning)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
