package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/finlegal/tenkdraft/models"
)

const priorYearSuffix = " (Prior Year)"

// Trend deadband: percent moves inside ±1% count as flat.
const trendDeadbandPct = 1.0

var unitSuffixRe = regexp.MustCompile(`(?i)(billion|million|[bm])\s*$`)

// ParseValue parses a loosely formatted financial value ("$130.5 billion",
// "(1,234)M", "75%") into a number and a unit ("B", "M", "%" or "").
func ParseValue(raw string) (float64, string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ""
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")

	unit := ""
	lower := strings.TrimSpace(strings.ToLower(s))
	switch {
	case strings.Contains(lower, "billion") || strings.HasSuffix(lower, "b"):
		unit = "B"
		s = unitSuffixRe.ReplaceAllString(s, "")
	case strings.Contains(lower, "million") || strings.HasSuffix(lower, "m"):
		unit = "M"
		s = unitSuffixRe.ReplaceAllString(s, "")
	case strings.Contains(s, "%"):
		unit = "%"
		s = strings.ReplaceAll(s, "%", "")
	}

	// Accountants write negatives in parentheses.
	if strings.Contains(s, "(") && strings.Contains(s, ")") {
		s = "-" + strings.NewReplacer("(", "", ")", "").Replace(s)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, unit
	}
	return v, unit
}

// AnalyzeYoY pairs current-year metrics with their "(Prior Year)" counterparts
// and computes the year-over-year movement. Percent change is rounded to one
// decimal; trends inside the ±1% deadband are flat. Metrics come back sorted
// by name so output is stable.
func AnalyzeYoY(financialData map[string]string) []models.YoYMetric {
	current := make(map[string]string)
	prior := make(map[string]string)
	for key, value := range financialData {
		if key == "raw_input" {
			continue
		}
		if strings.Contains(key, "(Prior Year)") {
			base := strings.TrimSpace(strings.Replace(key, priorYearSuffix, "", 1))
			base = strings.TrimSpace(strings.Replace(base, "(Prior Year)", "", 1))
			prior[base] = value
		} else {
			current[key] = value
		}
	}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	var metrics []models.YoYMetric
	for _, name := range names {
		currentVal, unit := ParseValue(current[name])
		m := models.YoYMetric{
			Name:         name,
			CurrentValue: currentVal,
			Unit:         unit,
			Trend:        models.TrendFlat,
		}

		if priorStr, ok := prior[name]; ok {
			priorVal, _ := ParseValue(priorStr)
			m.PriorValue = &priorVal
			if priorVal != 0 {
				abs := round(currentVal-priorVal, 2)
				pct := round((currentVal-priorVal)/math.Abs(priorVal)*100, 1)
				m.ChangeAbsolute = &abs
				m.ChangePercent = &pct
				if pct > trendDeadbandPct {
					m.Trend = models.TrendUp
				} else if pct < -trendDeadbandPct {
					m.Trend = models.TrendDown
				}
			}
		}
		metrics = append(metrics, m)
	}
	return metrics
}

// FormatYoYTable renders the metrics as a markdown table.
func FormatYoYTable(metrics []models.YoYMetric) string {
	if len(metrics) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n### Year-over-Year Analysis\n\n")
	b.WriteString("| Metric | Current Year | Prior Year | Change | % Change | Trend |\n")
	b.WriteString("|--------|--------------|------------|--------|----------|-------|\n")

	for _, m := range metrics {
		currentCell := formatValue(m.CurrentValue, m.Unit)
		priorCell := "N/A"
		if m.PriorValue != nil {
			priorCell = formatValue(*m.PriorValue, m.Unit)
		}
		changeCell := "N/A"
		if m.ChangeAbsolute != nil {
			suffix := m.Unit
			if m.Unit == "%" {
				// Percent-point difference, not a percent change.
				suffix = "pp"
			}
			changeCell = fmt.Sprintf("%+.1f%s", *m.ChangeAbsolute, suffix)
		}
		pctCell := "N/A"
		if m.ChangePercent != nil {
			pctCell = fmt.Sprintf("%+.1f%%", *m.ChangePercent)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			m.Name, currentCell, priorCell, changeCell, pctCell, m.Trend)
	}
	return b.String()
}

func formatValue(v float64, unit string) string {
	return fmt.Sprintf("%.1f%s", v, unit)
}

// FormatYoYNarrative summarizes notable movers in a sentence or two.
func FormatYoYNarrative(metrics []models.YoYMetric) string {
	if len(metrics) == 0 {
		return ""
	}
	var narratives []string

	var up, down []models.YoYMetric
	for _, m := range metrics {
		if m.ChangePercent == nil {
			continue
		}
		if *m.ChangePercent > 10 {
			up = append(up, m)
		} else if *m.ChangePercent < -10 {
			down = append(down, m)
		}
	}
	if len(up) > 0 {
		narratives = append(narratives, "Notable increases: "+moverList(up, true))
	}
	if len(down) > 0 {
		narratives = append(narratives, "Notable decreases: "+moverList(down, false))
	}

	for _, m := range metrics {
		if !strings.Contains(strings.ToLower(m.Name), "revenue") || m.ChangePercent == nil {
			continue
		}
		pct := *m.ChangePercent
		switch {
		case pct > 20:
			narratives = append(narratives, fmt.Sprintf("Strong revenue growth of %.1f%% year-over-year", pct))
		case pct > 0:
			narratives = append(narratives, fmt.Sprintf("Revenue increased %.1f%% compared to prior year", pct))
		default:
			narratives = append(narratives, fmt.Sprintf("Revenue declined %.1f%% from prior year", math.Abs(pct)))
		}
		break
	}

	if len(narratives) == 0 {
		return "Year-over-year data available for comparison"
	}
	return strings.Join(narratives, "; ")
}

func moverList(ms []models.YoYMetric, positive bool) string {
	if len(ms) > 3 {
		ms = ms[:3]
	}
	items := make([]string, len(ms))
	for i, m := range ms {
		if positive {
			items[i] = fmt.Sprintf("%s (+%.1f%%)", m.Name, *m.ChangePercent)
		} else {
			items[i] = fmt.Sprintf("%s (%.1f%%)", m.Name, *m.ChangePercent)
		}
	}
	return strings.Join(items, ", ")
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
