package state

import (
	"testing"
	"time"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

func TestMergeRequests_OrderAndFilter(t *testing.T) {
	db := setupTestDB(t)

	// Identical timestamps fall back to insertion order.
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"r1", "r2", "r3"} {
		r := &models.MergeRequest{
			ID:           id,
			Session:      "s-" + id,
			SourceBranch: "s-" + id,
			TargetBranch: "main",
			State:        models.MergeQueued,
			EnqueuedAt:   at,
			UpdatedAt:    at,
		}
		if err := db.SaveMergeRequest(r); err != nil {
			t.Fatalf("SaveMergeRequest(%s) failed: %v", id, err)
		}
	}

	// Updating a request must not move it in the order.
	r1 := &models.MergeRequest{
		ID: "r1", Session: "s-r1", SourceBranch: "s-r1", TargetBranch: "main",
		State: models.MergeFailed, LastError: "conflict", EnqueuedAt: at, UpdatedAt: at.Add(time.Minute),
	}
	if err := db.SaveMergeRequest(r1); err != nil {
		t.Fatalf("SaveMergeRequest(update) failed: %v", err)
	}

	all, err := db.ListMergeRequests(nil)
	if err != nil {
		t.Fatalf("ListMergeRequests failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListMergeRequests returned %d, want 3", len(all))
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if all[i].ID != want {
			t.Errorf("all[%d].ID = %q, want %q", i, all[i].ID, want)
		}
	}
	if all[0].State != models.MergeFailed || all[0].LastError != "conflict" {
		t.Errorf("r1 = %+v, want failed with conflict", all[0])
	}

	queued := models.MergeQueued
	pending, err := db.ListMergeRequests(&queued)
	if err != nil {
		t.Fatalf("ListMergeRequests(queued) failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "r2" || pending[1].ID != "r3" {
		t.Errorf("queued requests = %v, want [r2 r3]", pending)
	}
}

func TestPurgeMergeHistory(t *testing.T) {
	db := setupTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	for _, r := range []*models.MergeRequest{
		{ID: "done", Session: "a", SourceBranch: "a", TargetBranch: "main", State: models.MergeSucceeded, EnqueuedAt: old, UpdatedAt: old},
		{ID: "waiting", Session: "b", SourceBranch: "b", TargetBranch: "main", State: models.MergeQueued, EnqueuedAt: old, UpdatedAt: old},
		{ID: "recent", Session: "c", SourceBranch: "c", TargetBranch: "main", State: models.MergeFailed, EnqueuedAt: time.Now(), UpdatedAt: time.Now()},
	} {
		if err := db.SaveMergeRequest(r); err != nil {
			t.Fatalf("SaveMergeRequest failed: %v", err)
		}
	}

	n, err := db.PurgeMergeHistory(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeMergeHistory failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	left, _ := db.ListMergeRequests(nil)
	if len(left) != 2 {
		t.Errorf("remaining requests = %d, want 2", len(left))
	}
}

func TestPendingCleanup(t *testing.T) {
	db := setupTestDB(t)

	if err := db.AddPendingCleanup("/wt/a", "device busy"); err != nil {
		t.Fatalf("AddPendingCleanup failed: %v", err)
	}
	if err := db.AddPendingCleanup("/wt/a", "still busy"); err != nil {
		t.Fatalf("AddPendingCleanup (again) failed: %v", err)
	}
	if err := db.AddPendingCleanup("/wt/b", ""); err != nil {
		t.Fatalf("AddPendingCleanup failed: %v", err)
	}

	pending, err := db.ListPendingCleanup()
	if err != nil {
		t.Fatalf("ListPendingCleanup failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d entries, want 2", len(pending))
	}
	byPath := map[string]PendingCleanup{}
	for _, p := range pending {
		byPath[p.Path] = p
	}
	if got := byPath["/wt/a"]; got.Attempts != 2 || got.Reason != "still busy" {
		t.Errorf("/wt/a = %+v, want 2 attempts with latest reason", got)
	}

	if err := db.DeletePendingCleanup("/wt/a"); err != nil {
		t.Fatalf("DeletePendingCleanup failed: %v", err)
	}
	pending, _ = db.ListPendingCleanup()
	if len(pending) != 1 || pending[0].Path != "/wt/b" {
		t.Errorf("after delete pending = %v, want [/wt/b]", pending)
	}
}
