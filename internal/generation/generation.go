// Package generation drafts 10-K sections: it retrieves prior-filing
// passages, prompts the LLM, and runs the draft through citation linking,
// confidence scoring, and year-over-year analysis.
package generation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/analysis"
	"github.com/finlegal/tenkdraft/internal/audit"
	"github.com/finlegal/tenkdraft/internal/telemetry"
	"github.com/finlegal/tenkdraft/models"
	"github.com/finlegal/tenkdraft/provider"
)

// Section types the pipeline can draft.
const (
	SectionBusiness = "business"
	SectionMDA      = "mda"
)

// Retriever is the slice of the index the pipeline needs.
type Retriever interface {
	Search(ctx context.Context, query, ticker, sectionKey string, k int) ([]models.SearchHit, error)
}

// Request describes one section generation.
type Request struct {
	SessionID         string
	Ticker            string
	CompanyName       string
	FiscalYear        string
	Section           string
	FinancialData     map[string]string
	AdditionalContext string
}

type Pipeline struct {
	provider  provider.Provider
	retriever Retriever
	recorder  audit.Recorder
	llmCfg    config.LLMConfig
	topK      int
}

func NewPipeline(p provider.Provider, r Retriever, rec audit.Recorder, llmCfg config.LLMConfig, topK int) *Pipeline {
	if topK <= 0 {
		topK = 8
	}
	return &Pipeline{provider: p, retriever: r, recorder: rec, llmCfg: llmCfg, topK: topK}
}

// Generate drafts one section. An empty retrieval is not an error: the draft
// proceeds and the confidence score reflects the missing grounding.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*models.GenerationOutput, error) {
	if req.Section != SectionBusiness && req.Section != SectionMDA {
		return nil, fmt.Errorf("unknown section type %q", req.Section)
	}

	hits, err := p.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	telemetry.RetrievalResults.Observe(float64(len(hits)))

	var prompt string
	if req.Section == SectionBusiness {
		prompt = buildBusinessPrompt(req.CompanyName, req.FiscalYear, hits, req.AdditionalContext, p.llmCfg.MaxTokens)
	} else {
		prompt = buildMDAPrompt(req.CompanyName, req.FiscalYear, hits, req.FinancialData, req.AdditionalContext, p.llmCfg.MaxTokens)
	}

	start := time.Now()
	text, err := p.provider.Complete(ctx, []provider.Message{{Role: "user", Content: prompt}}, p.llmCfg.GenerateTemperature)
	telemetry.ObserveLLM("generate_"+req.Section, start, err)
	if err != nil {
		telemetry.Generations.WithLabelValues(req.Section, "error").Inc()
		return nil, fmt.Errorf("generating %s section: %w", req.Section, err)
	}

	linked := analysis.LinkCitations(text, hits)

	out := &models.GenerationOutput{
		Section:    req.Section,
		Text:       linked.Text,
		Citations:  linked.Citations,
		References: linked.References,
		Confidence: analysis.ScoreConfidence(req.FinancialData, hits, linked.Citations, req.Section),
		Sources:    len(hits),
	}
	if req.Section == SectionMDA && len(req.FinancialData) > 0 {
		out.YoYMetrics = analysis.AnalyzeYoY(req.FinancialData)
		out.YoYTable = analysis.FormatYoYTable(out.YoYMetrics)
	}

	p.record(ctx, req, out)
	telemetry.Generations.WithLabelValues(req.Section, "ok").Inc()
	return out, nil
}

func (p *Pipeline) retrieve(ctx context.Context, req Request) ([]models.SearchHit, error) {
	var query, sectionKey string
	if req.Section == SectionBusiness {
		query = fmt.Sprintf("company business description operations products services markets for %s", req.Ticker)
		sectionKey = models.SectionBusiness
	} else {
		query = fmt.Sprintf("management discussion analysis financial performance revenue operations results for %s", req.Ticker)
		sectionKey = models.SectionMDA
	}
	hits, err := p.retriever.Search(ctx, query, req.Ticker, sectionKey, p.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context for %s: %w", req.Ticker, err)
	}
	return hits, nil
}

// record writes the generation audit entry. Audit failure never blocks the
// response; it is logged and counted instead.
func (p *Pipeline) record(ctx context.Context, req Request, out *models.GenerationOutput) {
	if p.recorder == nil {
		return
	}
	citations := make([]interface{}, 0, len(out.Citations))
	for _, c := range out.Citations {
		citations = append(citations, map[string]interface{}{
			"id":      c.SourceID,
			"company": c.Company,
			"section": c.Section,
		})
	}
	rec := audit.NewRecord(req.SessionID, models.AuditEventGeneration, req.Ticker, req.FiscalYear,
		map[string]interface{}{
			"section": req.Section,
			"text":    out.Text,
		},
		map[string]interface{}{
			"sources":    out.Sources,
			"citations":  citations,
			"confidence": out.Confidence.Overall,
			"band":       out.Confidence.Band,
		})
	if err := p.recorder.Record(ctx, rec); err != nil {
		telemetry.AuditWriteFailures.Inc()
		log.Printf("[GEN] audit write failed (continuing): %v", err)
	}
}

// RecordDataProvided logs a user data submission to the audit trail.
func (p *Pipeline) RecordDataProvided(ctx context.Context, sessionID, ticker, fiscalYear, rawInput string, parsed map[string]string) {
	if p.recorder == nil {
		return
	}
	parsedAny := make(map[string]interface{}, len(parsed))
	for k, v := range parsed {
		if k != "raw_input" {
			parsedAny[k] = v
		}
	}
	rec := audit.NewRecord(sessionID, models.AuditEventDataProvided, ticker, fiscalYear,
		map[string]interface{}{
			"raw_input": rawInput,
			"parsed":    parsedAny,
		}, nil)
	if err := p.recorder.Record(ctx, rec); err != nil {
		telemetry.AuditWriteFailures.Inc()
		log.Printf("[GEN] audit write failed (continuing): %v", err)
	}
}
