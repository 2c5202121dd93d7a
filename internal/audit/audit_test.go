package audit

import (
	"context"
	"testing"

	"github.com/finlegal/tenkdraft/models"
)

func TestHashDeterministic(t *testing.T) {
	t.Parallel()
	content := map[string]interface{}{
		"input":  "Revenue: $130.5 billion",
		"output": "Revenue increased to $130.5 billion [Source 1].",
	}
	again := map[string]interface{}{
		"output": "Revenue increased to $130.5 billion [Source 1].",
		"input":  "Revenue: $130.5 billion",
	}
	h1 := Hash(content)
	h2 := Hash(again)
	if h1 != h2 {
		t.Errorf("identical content hashed differently: %s vs %s", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
}

func TestHashChangesWithContent(t *testing.T) {
	t.Parallel()
	base := map[string]interface{}{"input": "a", "output": "b"}
	inputChanged := map[string]interface{}{"input": "a2", "output": "b"}
	outputChanged := map[string]interface{}{"input": "a", "output": "b2"}

	h := Hash(base)
	if Hash(inputChanged) == h {
		t.Error("hash unchanged after input changed")
	}
	if Hash(outputChanged) == h {
		t.Error("hash unchanged after output changed")
	}
}

func TestHashNestedMaps(t *testing.T) {
	t.Parallel()
	a := map[string]interface{}{"outer": map[string]interface{}{"x": 1, "y": 2}}
	b := map[string]interface{}{"outer": map[string]interface{}{"y": 2, "x": 1}}
	if Hash(a) != Hash(b) {
		t.Error("nested key order should not affect the hash")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	recs := []models.AuditRecord{
		NewRecord("sess-1", models.AuditEventUserRequest, "nvda", "2024",
			map[string]interface{}{"message": "draft the 10-K"}, nil),
		NewRecord("sess-1", models.AuditEventGeneration, "nvda", "2024",
			map[string]interface{}{"section": "business", "text": "We design GPUs."},
			map[string]interface{}{"sources": 4.0}),
	}
	for _, rec := range recs {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.SessionRecords(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0].EventType != models.AuditEventUserRequest || got[1].EventType != models.AuditEventGeneration {
		t.Error("records out of append order")
	}
	if got[0].Ticker != "NVDA" {
		t.Errorf("ticker = %s, want uppercased", got[0].Ticker)
	}
	if got[1].ContentHash != recs[1].ContentHash {
		t.Error("content hash lost in round trip")
	}

	empty, err := store.SessionRecords(ctx, "missing")
	if err != nil {
		t.Fatalf("SessionRecords missing: %v", err)
	}
	if len(empty) != 0 {
		t.Error("unknown session should have no records")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	recs := []models.AuditRecord{
		NewRecord("s", models.AuditEventUserRequest, "NVDA", "2024", nil, nil),
		NewRecord("s", models.AuditEventDataProvided, "NVDA", "2024", nil, nil),
		NewRecord("s", models.AuditEventGeneration, "NVDA", "2024", nil, nil),
		NewRecord("s", models.AuditEventGeneration, "MSFT", "2024", nil, nil),
	}
	sum := Summarize("s", recs)
	if sum.Records != 4 {
		t.Errorf("records = %d", sum.Records)
	}
	if sum.EventCounts[models.AuditEventGeneration] != 2 {
		t.Errorf("generation count = %d", sum.EventCounts[models.AuditEventGeneration])
	}
	if len(sum.Tickers) != 2 || sum.Tickers[0] != "MSFT" {
		t.Errorf("tickers = %v", sum.Tickers)
	}
	if sum.FirstEvent == nil || sum.LastEvent == nil {
		t.Error("missing time range")
	}
}
