package models

import "time"

// Company identifies a registrant the assistant can draft filings for.
type Company struct {
	Ticker string `json:"ticker" mapstructure:"ticker"`
	Name   string `json:"name" mapstructure:"name"`
	CIK    string `json:"cik" mapstructure:"cik"`
}

// Filing is a downloaded 10-K, immutable once written to the filing store.
type Filing struct {
	Ticker          string            `json:"ticker"`
	CompanyName     string            `json:"company_name"`
	CIK             string            `json:"cik"`
	FilingDate      string            `json:"filing_date"`
	AccessionNumber string            `json:"accession_number"`
	SourceURL       string            `json:"source_url"`
	ContentHash     string            `json:"content_hash"`
	Sections        map[string]string `json:"sections"`
	DownloadedAt    time.Time         `json:"downloaded_at"`
}

// Section keys tracked per filing.
const (
	SectionBusiness    = "item_1_business"
	SectionRiskFactors = "item_1a_risk_factors"
	SectionMDA         = "item_7_mda"
	SectionMarketRisk  = "item_7a_market_risk"
)

// SectionNames maps section keys to their display names.
var SectionNames = map[string]string{
	SectionBusiness:    "Item 1 - Business",
	SectionRiskFactors: "Item 1A - Risk Factors",
	SectionMDA:         "Item 7 - MD&A",
	SectionMarketRisk:  "Item 7A - Market Risk",
}

// Chunk is a segment of filing text indexed for similarity search.
type Chunk struct {
	DocID       string `json:"doc_id"`
	Ticker      string `json:"ticker"`
	CompanyName string `json:"company_name"`
	SectionKey  string `json:"section_key"`
	SectionName string `json:"section_name"`
	FilingDate  string `json:"filing_date"`
	Text        string `json:"text"`
	ChunkIndex  int    `json:"chunk_index"`
	ContentHash string `json:"content_hash"`
}

// SearchHit is a relevance-ranked retrieval result.
type SearchHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`

	// Similarity is the underlying retrieval similarity in [0,1]. Score is
	// whatever the ranking stage produced (BM25 or fused RRF) and is only
	// comparable within one result list; Similarity is comparable across modes.
	Similarity float64 `json:"similarity"`
}

// Citation resolves a [Source N] marker in generated text to a retrieved chunk.
type Citation struct {
	SourceID   int     `json:"id"`
	Ticker     string  `json:"ticker"`
	Company    string  `json:"company"`
	Section    string  `json:"section"`
	FilingDate string  `json:"filing_date"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"relevance_score"`
	Excerpt    string  `json:"excerpt"`
	Unverified bool    `json:"unverified,omitempty"`
}

// Confidence bands.
const (
	BandHigh   = "HIGH"
	BandMedium = "MEDIUM"
	BandLow    = "LOW"
)

// ConfidenceScore grades generated content on a 0-100 scale.
type ConfidenceScore struct {
	Overall         float64 `json:"overall"`
	Band            string  `json:"band"`
	DataCoverage    float64 `json:"data_coverage"`
	SourceQuality   float64 `json:"source_quality"`
	CitationDensity float64 `json:"citation_density"`
	Reasoning       string  `json:"reasoning"`
}

// Trend classifications for YoY metrics.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// YoYMetric is a year-over-year comparison for a single financial metric.
type YoYMetric struct {
	Name           string   `json:"name"`
	CurrentValue   float64  `json:"current_value"`
	PriorValue     *float64 `json:"prior_value"`
	Unit           string   `json:"unit"`
	ChangeAbsolute *float64 `json:"change_absolute"`
	ChangePercent  *float64 `json:"change_percent"`
	Trend          string   `json:"trend"`
}

// GenerationOutput is the result of one section generation.
type GenerationOutput struct {
	Section    string          `json:"section"`
	Text       string          `json:"text"`
	Citations  []Citation      `json:"citations"`
	References string          `json:"references,omitempty"`
	Confidence ConfidenceScore `json:"confidence"`
	YoYMetrics []YoYMetric     `json:"yoy_metrics,omitempty"`
	YoYTable   string          `json:"yoy_table,omitempty"`
	Sources    int             `json:"sources_count"`
}

// AuditRecord is one append-only audit log entry.
type AuditRecord struct {
	SessionID   string                 `json:"session_id"`
	Timestamp   time.Time              `json:"timestamp"`
	EventType   string                 `json:"event_type"`
	Ticker      string                 `json:"ticker,omitempty"`
	FiscalYear  string                 `json:"fiscal_year,omitempty"`
	ContentHash string                 `json:"content_hash"`
	Content     map[string]interface{} `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Audit event types.
const (
	AuditEventUserRequest  = "user_request"
	AuditEventDataProvided = "data_provided"
	AuditEventGeneration   = "generation"
	AuditEventRevision     = "revision"
)
