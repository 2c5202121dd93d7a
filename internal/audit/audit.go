// Package audit provides append-only audit logging for assistant sessions.
// Every user request, data submission, and generation is recorded with a
// content hash so a reviewer can later verify what went in and what came out.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/finlegal/tenkdraft/models"
)

// Recorder appends audit records and reads them back per session.
type Recorder interface {
	Record(ctx context.Context, rec models.AuditRecord) error
	SessionRecords(ctx context.Context, sessionID string) ([]models.AuditRecord, error)
}

// Hash returns the first 16 hex chars of SHA-256 over the canonical JSON
// encoding of content. Identical content always hashes identically; any
// change to the content changes the hash.
func Hash(content map[string]interface{}) string {
	canonical := canonicalJSON(content)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalJSON renders a map deterministically: keys sorted at every level.
// encoding/json already sorts map keys, but content values may hold nested
// maps with interface{} keys after a JSON round trip, so normalize first.
func canonicalJSON(v interface{}) string {
	b, err := json.Marshal(normalize(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// NewRecord builds a hashed audit record with a UTC timestamp.
func NewRecord(sessionID, eventType, ticker, fiscalYear string, content, metadata map[string]interface{}) models.AuditRecord {
	if content == nil {
		content = map[string]interface{}{}
	}
	return models.AuditRecord{
		SessionID:   sessionID,
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		Ticker:      strings.ToUpper(ticker),
		FiscalYear:  fiscalYear,
		ContentHash: Hash(content),
		Content:     content,
		Metadata:    metadata,
	}
}

// Summary aggregates a session's audit trail.
type Summary struct {
	SessionID   string         `json:"session_id"`
	Records     int            `json:"records"`
	EventCounts map[string]int `json:"event_counts"`
	FirstEvent  *time.Time     `json:"first_event,omitempty"`
	LastEvent   *time.Time     `json:"last_event,omitempty"`
	Tickers     []string       `json:"tickers,omitempty"`
}

// Summarize folds a session's records into counts and a time range.
func Summarize(sessionID string, records []models.AuditRecord) Summary {
	s := Summary{
		SessionID:   sessionID,
		Records:     len(records),
		EventCounts: make(map[string]int),
	}
	tickers := make(map[string]bool)
	for i := range records {
		r := &records[i]
		s.EventCounts[r.EventType]++
		if r.Ticker != "" {
			tickers[r.Ticker] = true
		}
		ts := r.Timestamp
		if s.FirstEvent == nil || ts.Before(*s.FirstEvent) {
			t := ts
			s.FirstEvent = &t
		}
		if s.LastEvent == nil || ts.After(*s.LastEvent) {
			t := ts
			s.LastEvent = &t
		}
	}
	for t := range tickers {
		s.Tickers = append(s.Tickers, t)
	}
	sort.Strings(s.Tickers)
	return s
}
