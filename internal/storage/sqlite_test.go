package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rosterbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if st != nil {
		t.Fatal("disabled storage returned a store")
	}
}

func TestRecordAndQueryOutcomes(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i, ok := range []bool{true, false, true} {
		err := st.RecordJobOutcome(ctx, JobOutcome{
			JobID:      "j" + string(rune('a'+i)),
			DocumentID: "doc-1",
			LineID:     int64(i + 1),
			Kind:       "add_to_group",
			Label:      "member",
			Success:    ok,
			Attempts:   i + 1,
			Detail:     "detail",
		})
		if err != nil {
			t.Fatalf("RecordJobOutcome: %v", err)
		}
	}

	rows, err := st.OutcomesByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("OutcomesByDocument: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].JobID != "ja" || rows[1].Success {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[2].Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", rows[2].Attempts)
	}
}

func TestPruneOutcomes(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := st.RecordJobOutcome(ctx, JobOutcome{JobID: "old", DocumentID: "d", Kind: "add_to_group", Attempts: 1, FinishedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordJobOutcome(ctx, JobOutcome{JobID: "new", DocumentID: "d", Kind: "add_to_group", Attempts: 1}); err != nil {
		t.Fatal(err)
	}

	n, err := st.PruneOutcomes(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOutcomes: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	rows, err := st.OutcomesByDocument(ctx, "d")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].JobID != "new" {
		t.Fatalf("rows = %+v, want only the fresh row", rows)
	}
}
