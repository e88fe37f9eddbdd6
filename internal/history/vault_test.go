package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"insightstream/api/internal/casefile"
)

func baselineSnapshot() Snapshot {
	return Snapshot{
		Edits: casefile.SectionMap{
			"red_flags": {
				casefile.NewStructured(map[string]any{"description": "Missed screening", "relevance": "high"}),
			},
		},
		Comments: casefile.AnnotationStore{},
	}
}

func TestCaseRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	vault := New(tempDir)

	if err := vault.EnsureCaseRepo("case-1", baselineSnapshot(), "Dr. Chen"); err != nil {
		t.Fatalf("EnsureCaseRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "case-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Re-ensuring an existing repo is a no-op.
	if err := vault.EnsureCaseRepo("case-1", baselineSnapshot(), "Dr. Chen"); err != nil {
		t.Fatalf("second EnsureCaseRepo() error = %v", err)
	}

	updated := baselineSnapshot()
	updated.Edits["red_flags"][0] = casefile.NewStructured(map[string]any{
		"description": "Missed suicide screening at intake",
		"relevance":   "high",
	})
	updated.Comments.Set("red_flags", 0, "confirmed against intake note")

	commit, err := vault.CommitSnapshot("case-1", updated, "Dr. Chen", "Save review")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := vault.History("case-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Author != "Dr. Chen" {
		t.Errorf("author = %q", history[0].Author)
	}

	snapshot, err := vault.GetSnapshot("case-1", commit.Hash)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.Comments.Get("red_flags", 0) != "confirmed against intake note" {
		t.Errorf("snapshot comments = %+v", snapshot.Comments)
	}
	if snapshot.Edits["red_flags"][0].Narrative() != "Missed suicide screening at intake" {
		t.Errorf("snapshot edits = %+v", snapshot.Edits)
	}
}

func TestBaselineRecoverable(t *testing.T) {
	tempDir := t.TempDir()
	vault := New(tempDir)

	if err := vault.EnsureCaseRepo("case-2", baselineSnapshot(), "Dr. Chen"); err != nil {
		t.Fatalf("EnsureCaseRepo() error = %v", err)
	}

	history, err := vault.History("case-2", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected baseline commit, got %d entries", len(history))
	}

	snapshot, err := vault.GetSnapshot("case-2", history[0].Hash)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.Edits.TotalFindings() != 1 {
		t.Errorf("baseline snapshot findings = %d", snapshot.Edits.TotalFindings())
	}
}

func TestHistoryNegativeLimit(t *testing.T) {
	tempDir := t.TempDir()
	vault := New(tempDir)

	if err := vault.EnsureCaseRepo("case-4", baselineSnapshot(), "Dr. Chen"); err != nil {
		t.Fatalf("EnsureCaseRepo() error = %v", err)
	}
	if _, err := vault.CommitSnapshot("case-4", baselineSnapshot(), "Dr. Chen", "Save review"); err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	history, err := vault.History("case-4", -1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("negative limit should return the full log, got %d entries", len(history))
	}
}

func TestConcurrentSnapshotsSameCase(t *testing.T) {
	tempDir := t.TempDir()
	vault := New(tempDir)

	if err := vault.EnsureCaseRepo("case-3", baselineSnapshot(), "Dr. Chen"); err != nil {
		t.Fatalf("EnsureCaseRepo() error = %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			snapshot := baselineSnapshot()
			snapshot.Comments.Set("red_flags", 0, fmt.Sprintf("note-%02d", idx))
			if _, err := vault.CommitSnapshot("case-3", snapshot, "Dr. Chen", fmt.Sprintf("Save %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("CommitSnapshot() concurrent error = %v", err)
		}
	}

	history, err := vault.History("case-3", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits, got %d", writers+1, len(history))
	}
}
