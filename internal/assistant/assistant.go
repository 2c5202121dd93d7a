package assistant

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/analysis"
	"github.com/finlegal/tenkdraft/internal/audit"
	"github.com/finlegal/tenkdraft/internal/generation"
	"github.com/finlegal/tenkdraft/internal/telemetry"
	"github.com/finlegal/tenkdraft/models"
	"github.com/finlegal/tenkdraft/provider"
)

var yearRe = regexp.MustCompile(`20\d{2}`)

// Assistant drives the conversational drafting flow over a session store.
type Assistant struct {
	provider  provider.Provider
	pipeline  *generation.Pipeline
	store     Store
	recorder  audit.Recorder
	companies []models.Company
	llmCfg    config.LLMConfig

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is reference-counted so the lock map only holds entries for
// sessions with in-flight messages.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func New(p provider.Provider, pipeline *generation.Pipeline, store Store, recorder audit.Recorder, companies []models.Company, llmCfg config.LLMConfig) *Assistant {
	return &Assistant{
		provider:  p,
		pipeline:  pipeline,
		store:     store,
		recorder:  recorder,
		companies: companies,
		llmCfg:    llmCfg,
		locks:     make(map[string]*sessionLock),
	}
}

// StartSession creates a fresh session and returns it with the greeting.
func (a *Assistant) StartSession(ctx context.Context) (*Session, string, error) {
	s := NewSession()
	greeting := a.greeting()
	s.addTurn("assistant", greeting)
	if err := a.store.Save(ctx, s); err != nil {
		return nil, "", fmt.Errorf("saving session: %w", err)
	}
	return s, greeting, nil
}

// Session loads an existing session.
func (a *Assistant) Session(ctx context.Context, id string) (*Session, error) {
	return a.store.Get(ctx, id)
}

// Reset clears a session's target and history.
func (a *Assistant) Reset(ctx context.Context, id string) (*Session, error) {
	unlock := a.lock(id)
	defer unlock()
	s, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.resetTarget()
	s.Messages = nil
	if err := a.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// lock serializes message processing per session: a session is never mutated
// by two requests at once. The entry is dropped once the last holder releases
// it, keeping the map bounded by concurrent requests rather than session count.
func (a *Assistant) lock(sessionID string) func() {
	a.mu.Lock()
	l, ok := a.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		a.locks[sessionID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, sessionID)
		}
		a.mu.Unlock()
	}
}

// ProcessMessage advances the session state machine with one user message and
// returns the assistant's reply.
func (a *Assistant) ProcessMessage(ctx context.Context, sessionID, message string) (string, *Session, error) {
	unlock := a.lock(sessionID)
	defer unlock()

	s, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}
	telemetry.ChatRequests.Inc()
	s.addTurn("user", message)
	a.auditUserRequest(ctx, s, message)

	prevStage := s.Stage
	reply, err := a.step(ctx, s, message)
	if err != nil {
		// Retryable failures rewind to the stage the message arrived in, so
		// the session never persists a transient stage (retrieving,
		// generating_mdna) that step() has no handler for and the user's next
		// message resumes the flow. Anything else absorbs into the error stage.
		if provider.IsRetryable(err) {
			s.Stage = prevStage
		} else {
			s.Stage = StageError
		}
		if saveErr := a.store.Save(ctx, s); saveErr != nil {
			log.Printf("[ASSIST] saving session after failure: %v", saveErr)
		}
		return "", s, err
	}

	s.addTurn("assistant", reply)
	if err := a.store.Save(ctx, s); err != nil {
		return "", nil, fmt.Errorf("saving session: %w", err)
	}
	return reply, s, nil
}

func (a *Assistant) step(ctx context.Context, s *Session, message string) (string, error) {
	switch s.Stage {
	case StageStart:
		ticker := a.parseTicker(message)
		year := parseYear(message)
		if ticker == "" {
			s.Stage = StageAwaitingCompany
			return a.askForCompany(), nil
		}
		a.setTarget(s, ticker)
		if year == "" {
			s.Stage = StageAwaitingYear
			return askForYear(s.CompanyName), nil
		}
		s.FiscalYear = year
		return a.generateBusinessAndAskFinancials(ctx, s)

	case StageAwaitingCompany:
		ticker := a.parseTicker(message)
		if ticker == "" {
			return a.unknownCompany(), nil
		}
		a.setTarget(s, ticker)
		s.Stage = StageAwaitingYear
		return askForYear(s.CompanyName), nil

	case StageAwaitingYear:
		year := parseYear(message)
		if year == "" {
			return "Please specify a fiscal year (e.g., 2024, 2023).", nil
		}
		s.FiscalYear = year
		return a.generateBusinessAndAskFinancials(ctx, s)

	case StageAwaitingFinancials:
		parsed := analysis.ParseFinancialData(message)
		if !analysis.HasNumericMetric(parsed) {
			// Guard: MD&A generation needs at least one numeric figure.
			return "I couldn't find any financial figures in that message. " +
				clarifyingQuestions(s.Ticker, s.FiscalYear), nil
		}
		for k, v := range parsed {
			s.FinancialData[k] = v
		}
		return a.generateMDA(ctx, s)

	default:
		return a.handleGeneralQuery(ctx, s, message)
	}
}

func (a *Assistant) setTarget(s *Session, ticker string) {
	s.Ticker = ticker
	for _, c := range a.companies {
		if c.Ticker == ticker {
			s.CompanyName = c.Name
			break
		}
	}
}

// generateBusinessAndAskFinancials drafts the Business section, then asks for
// the financial data needed for the MD&A.
func (a *Assistant) generateBusinessAndAskFinancials(ctx context.Context, s *Session) (string, error) {
	s.Stage = StageRetrieving

	out, err := a.pipeline.Generate(ctx, generation.Request{
		SessionID:   s.ID,
		Ticker:      s.Ticker,
		CompanyName: s.CompanyName,
		FiscalYear:  s.FiscalYear,
		Section:     generation.SectionBusiness,
	})
	if err != nil {
		return "", err
	}
	s.GeneratedSections["business"] = out.Text

	var b strings.Builder
	fmt.Fprintf(&b, "Excellent! I'll generate the 10-K sections for **%s (%s)** for fiscal year **%s**.\n\n",
		s.CompanyName, s.Ticker, s.FiscalYear)
	b.WriteString("Let me first retrieve information from prior filings and generate the Business section...\n\n---\n\n")
	b.WriteString(sectionHeading("business") + "\n\n")
	b.WriteString(out.Text)
	b.WriteString(out.References)
	b.WriteString(analysis.FormatConfidenceIndicator(out.Confidence))
	b.WriteString("\n\n---\n\nNow, to generate the **MD&A (Item 7)** section, I need current fiscal year financial and business data.\n\n")
	b.WriteString(clarifyingQuestions(s.Ticker, s.FiscalYear))

	s.Stage = StageAwaitingFinancials
	return b.String(), nil
}

// generateMDA drafts the MD&A from collected financial data.
func (a *Assistant) generateMDA(ctx context.Context, s *Session) (string, error) {
	s.Stage = StageGeneratingMDNA
	a.pipeline.RecordDataProvided(ctx, s.ID, s.Ticker, s.FiscalYear, s.FinancialData["raw_input"], s.FinancialData)

	out, err := a.pipeline.Generate(ctx, generation.Request{
		SessionID:     s.ID,
		Ticker:        s.Ticker,
		CompanyName:   s.CompanyName,
		FiscalYear:    s.FiscalYear,
		Section:       generation.SectionMDA,
		FinancialData: s.FinancialData,
	})
	if err != nil {
		return "", err
	}
	s.GeneratedSections["mda"] = out.Text

	var b strings.Builder
	b.WriteString("Thank you for providing that information! Let me generate the MD&A section incorporating your data...\n\n---\n\n")
	b.WriteString(sectionHeading("mda") + "\n\n")
	b.WriteString(out.Text)
	b.WriteString(out.YoYTable)
	b.WriteString(out.References)
	b.WriteString(analysis.FormatConfidenceIndicator(out.Confidence))
	fmt.Fprintf(&b, "\n*This generation was recorded in the audit log for session `%s`.*\n", s.ID)
	b.WriteString(completionFooter)

	s.Stage = StageDone
	return b.String(), nil
}

// handleGeneralQuery serves follow-ups after the flow is done (or from the
// error stage): new generation requests, revisions with more data, or a plain
// conversational answer.
func (a *Assistant) handleGeneralQuery(ctx context.Context, s *Session, message string) (string, error) {
	lower := strings.ToLower(message)

	if containsAny(lower, "generate", "create", "draft", "new") {
		if ticker := a.parseTicker(message); ticker != "" {
			s.resetTarget()
			a.setTarget(s, ticker)
			if year := parseYear(message); year != "" {
				s.FiscalYear = year
				return a.generateBusinessAndAskFinancials(ctx, s)
			}
			s.Stage = StageAwaitingYear
			return askForYear(s.CompanyName), nil
		}
	}

	if s.Stage == StageDone && containsAny(lower, "revise", "update", "change", "add") {
		parsed := analysis.ParseFinancialData(message)
		if analysis.HasNumericMetric(parsed) {
			for k, v := range parsed {
				s.FinancialData[k] = v
			}
			a.auditRevision(ctx, s, message)
			return a.generateMDA(ctx, s)
		}
	}

	prompt := fmt.Sprintf(`The user is working on a 10-K for %s.

Current stage: %s
Already generated: %s

User's message: %s

Respond helpfully as a legal assistant would.`,
		orUnspecified(s.Ticker), s.Stage, strings.Join(sectionKeys(s.GeneratedSections), ", "), message)

	reply, err := a.provider.Complete(ctx, []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, a.llmCfg.ChatTemperature)
	if err != nil {
		return "", fmt.Errorf("answering follow-up: %w", err)
	}
	return reply, nil
}

func (a *Assistant) parseTicker(text string) string {
	upper := strings.ToUpper(text)
	for _, c := range a.companies {
		if containsWord(upper, c.Ticker) || strings.Contains(upper, strings.ToUpper(c.Name)) {
			return c.Ticker
		}
	}
	// Company short names ("NVIDIA" for "NVIDIA Corporation").
	for _, c := range a.companies {
		if first := shortName(c.Name); len(first) > 2 && strings.Contains(upper, first) {
			return c.Ticker
		}
	}
	return ""
}

// shortName reduces a legal name to its leading distinctive word:
// "The Coca-Cola Company" -> "COCA-COLA", "Amazon.com, Inc." -> "AMAZON".
func shortName(name string) string {
	upper := strings.TrimPrefix(strings.ToUpper(name), "THE ")
	fields := strings.Fields(upper)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	end := 0
	for end < len(first) {
		b := first[end]
		if (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '-' {
			end++
			continue
		}
		break
	}
	return first[:end]
}

// containsWord matches ticker symbols on word boundaries so "KO" doesn't fire
// inside an unrelated word.
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isAlnum(text[start-1])
		afterOK := end == len(text) || !isAlnum(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func parseYear(text string) string {
	return yearRe.FindString(text)
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func orUnspecified(s string) string {
	if s == "" {
		return "an unspecified company"
	}
	return s
}

func sectionKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (a *Assistant) auditUserRequest(ctx context.Context, s *Session, message string) {
	if a.recorder == nil {
		return
	}
	rec := audit.NewRecord(s.ID, models.AuditEventUserRequest, s.Ticker, s.FiscalYear,
		map[string]interface{}{"message": message},
		map[string]interface{}{"stage": string(s.Stage)})
	if err := a.recorder.Record(ctx, rec); err != nil {
		telemetry.AuditWriteFailures.Inc()
		log.Printf("[ASSIST] audit write failed (continuing): %v", err)
	}
}

func (a *Assistant) auditRevision(ctx context.Context, s *Session, message string) {
	if a.recorder == nil {
		return
	}
	rec := audit.NewRecord(s.ID, models.AuditEventRevision, s.Ticker, s.FiscalYear,
		map[string]interface{}{"message": message}, nil)
	if err := a.recorder.Record(ctx, rec); err != nil {
		telemetry.AuditWriteFailures.Inc()
		log.Printf("[ASSIST] audit write failed (continuing): %v", err)
	}
}
