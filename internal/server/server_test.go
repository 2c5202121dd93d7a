package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/assistant"
	"github.com/finlegal/tenkdraft/internal/audit"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/models"
	"github.com/finlegal/tenkdraft/provider"
)

type fixedProvider struct{ response string }

func (f fixedProvider) Complete(_ context.Context, _ []provider.Message, _ float64) (string, error) {
	return f.response, nil
}

func (f fixedProvider) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

type fixedRetriever struct{}

func (fixedRetriever) Search(_ context.Context, _, ticker, _ string, _ int) ([]models.SearchHit, error) {
	return []models.SearchHit{{
		Chunk: models.Chunk{DocID: "d1", Ticker: ticker, CompanyName: "NVIDIA Corporation",
			SectionName: "Item 1 - Business", FilingDate: "2024-02-21", Text: "We design GPUs."},
		Score: 0.9, Similarity: 0.9, Rank: 1,
	}}, nil
}

func testConfig(jwtSecret string) *config.Config {
	return &config.Config{
		General: config.GeneralConfig{DefaultTimeout: 30 * time.Second},
		Server:  config.ServerConfig{Address: ":0", JWTSecret: jwtSecret},
		LLM:     config.LLMConfig{GenerateTemperature: 0.3, ChatTemperature: 0.7, MaxTokens: 4096},
		Companies: []models.Company{
			{Ticker: "NVDA", Name: "NVIDIA Corporation", CIK: "0001045810"},
			{Ticker: "MSFT", Name: "Microsoft Corporation", CIK: "0000789019"},
		},
	}
}

func newTestServer(t *testing.T, jwtSecret string) *Server {
	t.Helper()
	cfg := testConfig(jwtSecret)
	prov := fixedProvider{response: "Draft narrative [Source 1]."}
	recorder, err := audit.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	pipeline := generation.NewPipeline(prov, fixedRetriever{}, recorder, cfg.LLM, 8)
	asst := assistant.New(prov, pipeline, assistant.NewMemoryStore(time.Hour), recorder, cfg.Companies, cfg.LLM)
	return NewServer(cfg, asst, pipeline, recorder)
}

func doJSON(t *testing.T, e http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "").Router()
	rec := doJSON(t, e, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestCompanies(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "").Router()
	rec := doJSON(t, e, http.MethodGet, "/companies", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("companies = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Companies []models.Company `json:"companies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Companies) != 2 || resp.Companies[0].Ticker != "NVDA" {
		t.Errorf("companies = %+v", resp.Companies)
	}
}

func TestChatFlowOverHTTP(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "").Router()

	rec := doJSON(t, e, http.MethodPost, "/chat/start", "{}", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat/start = %d: %s", rec.Code, rec.Body.String())
	}
	var start chatStartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &start); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if start.SessionID == "" || !strings.Contains(start.Message, "10-K filing assistant") {
		t.Fatalf("start = %+v", start)
	}

	body, _ := json.Marshal(chatRequest{SessionID: start.SessionID, Message: "NVDA 2025 please"})
	rec = doJSON(t, e, http.MethodPost, "/chat", string(body), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat = %d: %s", rec.Code, rec.Body.String())
	}
	var chat chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &chat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chat.Stage != string(assistant.StageAwaitingFinancials) {
		t.Errorf("stage = %s", chat.Stage)
	}
	if chat.Ticker != "NVDA" || chat.FiscalYear != "2025" {
		t.Errorf("target = %s/%s", chat.Ticker, chat.FiscalYear)
	}

	// Audit trail exists for the session.
	rec = doJSON(t, e, http.MethodGet, "/sessions/"+start.SessionID+"/audit", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit = %d: %s", rec.Code, rec.Body.String())
	}
	var auditResp struct {
		Summary audit.Summary `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &auditResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if auditResp.Summary.Records == 0 {
		t.Error("expected audit records after chat")
	}

	rec = doJSON(t, e, http.MethodGet, "/sessions/"+start.SessionID+"/content", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("content = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "business") {
		t.Errorf("content missing generated section: %s", rec.Body.String())
	}
}

func TestChatUnknownSession(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "").Router()
	body := `{"session_id":"nope","message":"hi"}`
	rec := doJSON(t, e, http.MethodPost, "/chat", body, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("chat unknown session = %d, want 404", rec.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "").Router()

	body := `{"ticker":"nvda","fiscal_year":"2025","financial_data":{"Revenue":"$130.5 billion","Revenue (Prior Year)":"$60.9 billion"}}`
	rec := doJSON(t, e, http.MethodPost, "/generate", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate = %d: %s", rec.Code, rec.Body.String())
	}
	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Business == nil || resp.Business.Text == "" {
		t.Error("missing business output")
	}
	if resp.MDA == nil {
		t.Fatal("missing mda output despite financial data")
	}
	if !strings.Contains(resp.MDA.YoYTable, "+114.3%") {
		t.Errorf("yoy table = %q", resp.MDA.YoYTable)
	}
}

func TestGenerateUnknownTicker(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "").Router()
	rec := doJSON(t, e, http.MethodPost, "/generate", `{"ticker":"AAPL","fiscal_year":"2025"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("generate unknown ticker = %d, want 400", rec.Code)
	}
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, "test-secret").Router()

	rec := doJSON(t, e, http.MethodGet, "/companies", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without token = %d, want 401", rec.Code)
	}

	// Health and metrics stay open.
	rec = doJSON(t, e, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz with auth enabled = %d", rec.Code)
	}

	token, err := SignToken("tester", []byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	rec = doJSON(t, e, http.MethodGet, "/companies", "", map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Fatalf("with token = %d: %s", rec.Code, rec.Body.String())
	}

	bad, _ := SignToken("tester", []byte("wrong-secret"), time.Hour)
	rec = doJSON(t, e, http.MethodGet, "/companies", "", map[string]string{"Authorization": "Bearer " + bad})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret = %d, want 401", rec.Code)
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	for _, spec := range []string{"@daily", "@hourly", "0 3 * * *"} {
		if _, err := parseSchedule(spec); err != nil {
			t.Errorf("parseSchedule(%q): %v", spec, err)
		}
	}
	if _, err := parseSchedule("not a cron"); err == nil {
		t.Error("expected error for invalid spec")
	}
}
