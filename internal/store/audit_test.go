package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to open audit store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecentPlans(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordPlan("chat-1", "total sales?", "Compute total sales", false, `{"goal":"..."}`); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPlan("chat-1", "chart it", "Chart total sales", true, "model timeout"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordPlan("chat-2", "other session", "Other", false, "{}"); err != nil {
		t.Fatal(err)
	}

	records, err := s.RecentPlans("chat-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for chat-1, got %d", len(records))
	}
	if records[0].Question != "total sales?" || records[1].Question != "chart it" {
		t.Errorf("records out of chronological order: %+v", records)
	}
	if records[0].Fallback || !records[1].Fallback {
		t.Errorf("fallback flags wrong: %+v", records)
	}
}

func TestFallbackCount(t *testing.T) {
	s := newTestStore(t)

	_ = s.RecordPlan("chat-1", "a", "g", true, "err")
	_ = s.RecordPlan("chat-1", "b", "g", true, "err")
	_ = s.RecordPlan("chat-1", "c", "g", false, "{}")

	count, err := s.FallbackCount("chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 fallbacks, got %d", count)
	}
}
