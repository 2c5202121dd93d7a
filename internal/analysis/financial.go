package analysis

import (
	"regexp"
	"strings"
)

// Key-value patterns accepted in plain-text financial input. Each pattern
// captures a metric name, a value, and optionally a unit.
var financialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(revenue|sales)[\s:]*\$?([\d,.]+)\s*(billion|million|B|M)?`),
	regexp.MustCompile(`(?i)(growth|increase|decrease)[\s:]*(-?[\d,.]+)%?`),
	regexp.MustCompile(`(?i)(operating income|net income|EBITDA)[\s:]*\$?([\d,.]+)\s*(billion|million|B|M)?`),
	regexp.MustCompile(`(?i)(cash flow|FCF|free cash flow)[\s:]*\$?([\d,.]+)\s*(billion|million|B|M)?`),
	regexp.MustCompile(`(?i)(margin)[\s:]*(-?[\d,.]+)%`),
	regexp.MustCompile(`(?i)(segment|division)[\s:]+([^\n,]+)`),
	regexp.MustCompile(`(?i)(launched|discontinued|acquired|partnered)[\s:]+([^\n]+)`),
}

// ParseFinancialData extracts metric/value pairs from free-form user input.
// Markdown tables map the first column to the metric, the second to the
// current-year value, and the third to the prior-year value (stored under the
// "(Prior Year)" key convention). Plain text is scanned for known key-value
// patterns. The raw text is always preserved under "raw_input" so the model
// can mine anything the parser missed. Input with nothing recognizable yields
// only raw_input; callers treat that as "no parsed metrics".
func ParseFinancialData(text string) map[string]string {
	data := make(map[string]string)

	if strings.Contains(text, "|") {
		parseMarkdownTable(text, data)
	}

	for _, re := range financialPatterns {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			key := strings.TrimSpace(match[1])
			value := strings.TrimSpace(match[2])
			if len(match) > 3 && strings.TrimSpace(match[3]) != "" {
				value += " " + strings.TrimSpace(match[3])
			}
			if value == "" {
				continue
			}
			if _, exists := data[key]; !exists {
				data[key] = value
			}
		}
	}

	if trimmed := strings.TrimSpace(text); trimmed != "" {
		data["raw_input"] = trimmed
	}
	return data
}

func parseMarkdownTable(text string, data map[string]string) {
	var sawHeader bool
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if !strings.Contains(line, "|") || strings.Contains(line, "---") {
			continue
		}
		var cells []string
		for _, c := range strings.Split(line, "|") {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if !sawHeader {
			if len(cells) > 0 {
				sawHeader = true
			}
			continue
		}
		if len(cells) < 2 {
			continue
		}
		metric := cells[0]
		data[metric] = cells[1]
		if len(cells) >= 3 {
			data[metric+priorYearSuffix] = cells[2]
		}
	}
}

// HasNumericMetric reports whether any parsed entry (other than raw_input)
// contains a digit. The assistant will not attempt MD&A generation without at
// least one numeric figure to anchor it.
func HasNumericMetric(data map[string]string) bool {
	for key, value := range data {
		if key == "raw_input" {
			continue
		}
		if strings.ContainsAny(value, "0123456789") {
			return true
		}
	}
	return false
}
