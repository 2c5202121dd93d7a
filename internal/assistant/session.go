// Package assistant implements the conversational 10-K drafting flow: a
// per-session state machine that collects the target company, fiscal year,
// and financial data, then drives the generation pipeline.
package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage tracks where a session is in the drafting flow.
type Stage string

const (
	StageStart              Stage = "start"
	StageAwaitingCompany    Stage = "awaiting_company"
	StageAwaitingYear       Stage = "awaiting_year"
	StageRetrieving         Stage = "retrieving"
	StageAwaitingFinancials Stage = "awaiting_financials"
	StageGeneratingMDNA     Stage = "generating_mdna"
	StageDone               Stage = "done"
	StageError              Stage = "error"
)

// Turn is one message in the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session holds the conversation context and everything collected so far.
type Session struct {
	ID                string            `json:"id"`
	Stage             Stage             `json:"stage"`
	Ticker            string            `json:"ticker,omitempty"`
	CompanyName       string            `json:"company_name,omitempty"`
	FiscalYear        string            `json:"fiscal_year,omitempty"`
	FinancialData     map[string]string `json:"financial_data,omitempty"`
	GeneratedSections map[string]string `json:"generated_sections,omitempty"`
	Messages          []Turn            `json:"messages,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                uuid.NewString(),
		Stage:             StageStart,
		FinancialData:     make(map[string]string),
		GeneratedSections: make(map[string]string),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *Session) addTurn(role, content string) {
	s.Messages = append(s.Messages, Turn{Role: role, Content: content})
	s.UpdatedAt = time.Now().UTC()
}

// resetTarget clears the drafting target for a fresh generation while keeping
// the session and its history.
func (s *Session) resetTarget() {
	s.Ticker = ""
	s.CompanyName = ""
	s.FiscalYear = ""
	s.FinancialData = make(map[string]string)
	s.GeneratedSections = make(map[string]string)
	s.Stage = StageStart
}

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions between requests.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in-process with a TTL. Suitable for the CLI and
// single-instance serving.
type MemoryStore struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[string]*memEntry
}

type memEntry struct {
	session   *Session
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemoryStore{ttl: ttl, sessions: make(map[string]*memEntry)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &memEntry{session: s, expiresAt: time.Now().Add(m.ttl)}
	// Opportunistic sweep of expired entries.
	now := time.Now()
	for id, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
