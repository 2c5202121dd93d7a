// Package analysis implements the post-generation checks applied to drafted
// sections: citation linking, confidence scoring, year-over-year comparison,
// and financial input parsing.
package analysis

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/finlegal/tenkdraft/models"
)

var citationMarkerRe = regexp.MustCompile(`\[Source (\d+)\]`)

// LinkResult carries the cleaned text and resolved citations for a draft.
type LinkResult struct {
	Text       string
	Citations  []models.Citation
	References string
}

// LinkCitations resolves [Source N] markers in generated text against the
// retrieved passages, 1-based in retrieval order. Markers whose ordinal falls
// outside the retrieved set are removed from the text and recorded as
// unverified; a linked citation never points outside the retrieved set.
func LinkCitations(text string, hits []models.SearchHit) LinkResult {
	seen := make(map[int]bool)
	var ordinals []int
	for _, m := range citationMarkerRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		ordinals = append(ordinals, n)
	}
	sort.Ints(ordinals)

	var citations []models.Citation
	for _, n := range ordinals {
		if n < 1 || n > len(hits) {
			marker := fmt.Sprintf("[Source %d]", n)
			text = strings.ReplaceAll(text, marker, "")
			citations = append(citations, models.Citation{SourceID: n, Unverified: true})
			continue
		}
		h := hits[n-1]
		citations = append(citations, models.Citation{
			SourceID:   n,
			Ticker:     h.Chunk.Ticker,
			Company:    h.Chunk.CompanyName,
			Section:    h.Chunk.SectionName,
			FilingDate: h.Chunk.FilingDate,
			ChunkIndex: h.Chunk.ChunkIndex,
			Score:      h.Similarity,
			Excerpt:    excerpt(h.Chunk.Text),
		})
	}

	return LinkResult{
		Text:       text,
		Citations:  citations,
		References: formatReferences(citations),
	}
}

// VerifiedCount returns how many citations resolved to retrieved passages.
func VerifiedCount(citations []models.Citation) int {
	n := 0
	for _, c := range citations {
		if !c.Unverified {
			n++
		}
	}
	return n
}

func formatReferences(citations []models.Citation) string {
	var b strings.Builder
	for _, c := range citations {
		if c.Unverified {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("\n\n---\n\n## Sources\n\n")
		}
		fmt.Fprintf(&b, "**[%d]** %s - %s (Filed: %s)\n", c.SourceID, c.Company, c.Section, c.FilingDate)
	}
	return b.String()
}

func excerpt(text string) string {
	if len(text) <= 200 {
		return text
	}
	return text[:200] + "..."
}
