package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/models"
	"github.com/finlegal/tenkdraft/provider"
)

type scriptedProvider struct {
	response string
}

func (s *scriptedProvider) Complete(_ context.Context, _ []provider.Message, _ float64) (string, error) {
	return s.response, nil
}

func (s *scriptedProvider) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

type stubRetriever struct{}

func (stubRetriever) Search(_ context.Context, _, ticker, _ string, _ int) ([]models.SearchHit, error) {
	return []models.SearchHit{{
		Chunk: models.Chunk{DocID: "d1", Ticker: ticker, CompanyName: "NVIDIA Corporation",
			SectionName: "Item 1 - Business", FilingDate: "2024-02-21",
			Text: "We design GPUs."},
		Score: 0.9, Similarity: 0.9, Rank: 1,
	}}, nil
}

func testCompanies() []models.Company {
	return []models.Company{
		{Ticker: "NVDA", Name: "NVIDIA Corporation", CIK: "0001045810"},
		{Ticker: "MSFT", Name: "Microsoft Corporation", CIK: "0000789019"},
		{Ticker: "KO", Name: "The Coca-Cola Company", CIK: "0000021344"},
	}
}

func newTestAssistant(t *testing.T, response string) *Assistant {
	t.Helper()
	prov := &scriptedProvider{response: response}
	cfg := config.LLMConfig{GenerateTemperature: 0.3, ChatTemperature: 0.7, MaxTokens: 4096}
	pipeline := generation.NewPipeline(prov, stubRetriever{}, nil, cfg, 8)
	store := NewMemoryStore(time.Hour)
	return New(prov, pipeline, store, nil, testCompanies(), cfg)
}

func TestStartSessionGreeting(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "")
	s, greeting, err := a.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if s.Stage != StageStart {
		t.Errorf("stage = %s", s.Stage)
	}
	if !strings.Contains(greeting, "NVDA") || !strings.Contains(greeting, "NVIDIA Corporation") {
		t.Errorf("greeting missing companies: %q", greeting)
	}
}

func TestFullDraftingFlow(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "Drafted text [Source 1].")
	ctx := context.Background()
	s, _, err := a.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// No company mentioned: ask for one.
	reply, s2, err := a.ProcessMessage(ctx, s.ID, "hello, I need help with a 10-K")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if s2.Stage != StageAwaitingCompany {
		t.Fatalf("stage = %s, want awaiting_company", s2.Stage)
	}
	if !strings.Contains(reply, "Which company") {
		t.Errorf("reply = %q", reply)
	}

	// Company by name: ask for year.
	_, s3, err := a.ProcessMessage(ctx, s.ID, "let's do NVIDIA")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if s3.Stage != StageAwaitingYear || s3.Ticker != "NVDA" {
		t.Fatalf("stage = %s ticker = %s", s3.Stage, s3.Ticker)
	}

	// Year: generate Business, ask for financials.
	reply, s4, err := a.ProcessMessage(ctx, s.ID, "fiscal year 2025 please")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if s4.Stage != StageAwaitingFinancials {
		t.Fatalf("stage = %s, want awaiting_financials", s4.Stage)
	}
	if !strings.Contains(reply, "Item 1. Business (Draft)") {
		t.Errorf("reply missing business draft heading")
	}
	if !strings.Contains(reply, "Financial Data Required") {
		t.Errorf("reply missing clarifying questions")
	}
	if s4.GeneratedSections["business"] == "" {
		t.Error("business section not stored on session")
	}

	// Non-numeric message: guard holds, stage unchanged.
	reply, s5, err := a.ProcessMessage(ctx, s.ID, "what do you need exactly?")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if s5.Stage != StageAwaitingFinancials {
		t.Fatalf("stage = %s, guard should hold without numeric data", s5.Stage)
	}
	if !strings.Contains(reply, "couldn't find any financial figures") {
		t.Errorf("reply = %q", reply)
	}

	// Financial data: generate MD&A, complete.
	reply, s6, err := a.ProcessMessage(ctx, s.ID, "Revenue: $130.5 billion\nNet income: $72.9 billion")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if s6.Stage != StageDone {
		t.Fatalf("stage = %s, want done", s6.Stage)
	}
	if !strings.Contains(reply, "Item 7. Management's Discussion") {
		t.Error("reply missing MD&A heading")
	}
	if s6.GeneratedSections["mda"] == "" {
		t.Error("mda section not stored on session")
	}
}

func TestStartWithCompanyAndYearInOneMessage(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "Business draft [Source 1].")
	ctx := context.Background()
	s, _, _ := a.StartSession(ctx)

	_, s2, err := a.ProcessMessage(ctx, s.ID, "Generate the Business and MD&A sections for MSFT's 2024 Form 10-K")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if s2.Ticker != "MSFT" || s2.FiscalYear != "2024" {
		t.Errorf("target = %s/%s", s2.Ticker, s2.FiscalYear)
	}
	if s2.Stage != StageAwaitingFinancials {
		t.Errorf("stage = %s", s2.Stage)
	}
}

func TestNewGenerationFromDone(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "Draft.")
	ctx := context.Background()
	s, _, _ := a.StartSession(ctx)

	// Walk to done quickly.
	if _, _, err := a.ProcessMessage(ctx, s.ID, "KO 2024"); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if _, _, err := a.ProcessMessage(ctx, s.ID, "Revenue: $45.8 billion"); err != nil {
		t.Fatalf("step 2: %v", err)
	}

	_, s2, err := a.ProcessMessage(ctx, s.ID, "Now generate a new draft for MSFT 2025")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s2.Ticker != "MSFT" || s2.FiscalYear != "2025" {
		t.Errorf("restart target = %s/%s", s2.Ticker, s2.FiscalYear)
	}
	if len(s2.FinancialData) != 0 {
		t.Error("financial data should reset for a new target")
	}
}

func TestReviseFromDone(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "Draft.")
	ctx := context.Background()
	s, _, _ := a.StartSession(ctx)

	if _, _, err := a.ProcessMessage(ctx, s.ID, "NVDA 2025"); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if _, _, err := a.ProcessMessage(ctx, s.ID, "Revenue: $130.5 billion"); err != nil {
		t.Fatalf("step 2: %v", err)
	}

	_, s2, err := a.ProcessMessage(ctx, s.ID, "Please add: Operating income: $81.5 billion")
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if s2.Stage != StageDone {
		t.Errorf("stage = %s, regeneration should land back in done", s2.Stage)
	}
	if _, ok := s2.FinancialData["Operating income"]; !ok {
		t.Errorf("revision data not merged: %v", s2.FinancialData)
	}
}

type flakyProvider struct {
	failures int
	response string
}

func (f *flakyProvider) Complete(_ context.Context, _ []provider.Message, _ float64) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", provider.Retryable(errors.New("upstream timeout"))
	}
	return f.response, nil
}

func (f *flakyProvider) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func TestRetryableFailureLeavesResumableStage(t *testing.T) {
	t.Parallel()
	prov := &flakyProvider{failures: 1, response: "Draft [Source 1]."}
	cfg := config.LLMConfig{GenerateTemperature: 0.3, ChatTemperature: 0.7, MaxTokens: 4096}
	pipeline := generation.NewPipeline(prov, stubRetriever{}, nil, cfg, 8)
	a := New(prov, pipeline, NewMemoryStore(time.Hour), nil, testCompanies(), cfg)
	ctx := context.Background()
	s, _, _ := a.StartSession(ctx)

	// First attempt fails transiently mid-generation.
	_, s2, err := a.ProcessMessage(ctx, s.ID, "NVDA 2025")
	if err == nil {
		t.Fatal("expected the flaky provider to fail the first attempt")
	}
	if !provider.IsRetryable(err) {
		t.Fatalf("error not retryable: %v", err)
	}
	if s2.Stage == StageRetrieving || s2.Stage == StageGeneratingMDNA {
		t.Fatalf("transient stage %s persisted on the session", s2.Stage)
	}

	// Resending the request must resume generation, not fall into chat.
	reply, s3, err := a.ProcessMessage(ctx, s.ID, "NVDA 2025")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s3.Stage != StageAwaitingFinancials {
		t.Fatalf("stage after retry = %s, want awaiting_financials", s3.Stage)
	}
	if !strings.Contains(reply, "Item 1. Business (Draft)") {
		t.Errorf("retry produced no business draft: %q", reply)
	}

	// Same for the MD&A leg: a transient failure keeps the session waiting
	// for financials so resending the data completes the flow.
	prov.failures = 1
	_, s4, err := a.ProcessMessage(ctx, s.ID, "Revenue: $130.5 billion")
	if err == nil {
		t.Fatal("expected transient MD&A failure")
	}
	if s4.Stage != StageAwaitingFinancials {
		t.Fatalf("stage after MD&A failure = %s, want awaiting_financials", s4.Stage)
	}
	_, s5, err := a.ProcessMessage(ctx, s.ID, "Revenue: $130.5 billion")
	if err != nil {
		t.Fatalf("MD&A retry: %v", err)
	}
	if s5.Stage != StageDone {
		t.Errorf("stage after MD&A retry = %s, want done", s5.Stage)
	}
}

func TestSessionLocksReleased(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "Draft.")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s, _, err := a.StartSession(ctx)
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}
		if _, _, err := a.ProcessMessage(ctx, s.ID, "hello"); err != nil {
			t.Fatalf("ProcessMessage: %v", err)
		}
	}

	a.mu.Lock()
	n := len(a.locks)
	a.mu.Unlock()
	if n != 0 {
		t.Errorf("locks map holds %d entries after all messages finished, want 0", n)
	}
}

func TestParseTickerWordBoundary(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "")
	if got := a.parseTicker("I am looking at KODAK filings"); got != "" {
		t.Errorf("parseTicker matched inside a word: %s", got)
	}
	if got := a.parseTicker("draft for KO please"); got != "KO" {
		t.Errorf("parseTicker = %q, want KO", got)
	}
	if got := a.parseTicker("the Coca-Cola Company 10-K"); got != "KO" {
		t.Errorf("parseTicker by name = %q, want KO", got)
	}
}

func TestSessionNotFound(t *testing.T) {
	t.Parallel()
	a := newTestAssistant(t, "")
	if _, _, err := a.ProcessMessage(context.Background(), "no-such-session", "hi"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(10 * time.Millisecond)
	s := NewSession()
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Get(context.Background(), s.ID); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := store.Get(context.Background(), s.ID); err != ErrSessionNotFound {
		t.Errorf("Get after expiry = %v, want ErrSessionNotFound", err)
	}
}
