package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"signal-radar/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "radar.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertSignalEventsIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	ev := model.SignalEvent{ProfileID: 1, Keyword: "funding", PostURL: "https://p/1", Snippet: "s", DetectedAt: now}

	inserted, err := store.InsertSignalEvents(ctx, []model.SignalEvent{ev})
	if err != nil {
		t.Fatalf("first insert error: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected 1 inserted, got %d", len(inserted))
	}

	other := ev
	other.Keyword = "hiring"
	inserted, err = store.InsertSignalEvents(ctx, []model.SignalEvent{ev, other})
	if err != nil {
		t.Fatalf("duplicate insert must not error: %v", err)
	}
	if len(inserted) != 1 || inserted[0].Keyword != "hiring" {
		t.Fatalf("expected only the new keyword inserted, got %+v", inserted)
	}

	all, err := store.ListSignals(ctx, SignalQuery{ProfileID: 1})
	if err != nil {
		t.Fatalf("ListSignals error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected exactly 2 stored rows, got %d", len(all))
	}
}

func TestDueProfilesOrderingAndUpdate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	acc := model.Account{Email: "owner@example.com", Plan: model.PlanBasic, WebhookURL: "https://hooks.example.com/x"}
	if err := store.CreateAccount(ctx, &acc); err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}

	profiles := []model.MonitoredProfile{
		{AccountID: acc.ID, ProfileURL: "https://linkedin.com/in/late", Keywords: []string{"a"}, NextScanAt: now.Add(-1 * time.Hour)},
		{AccountID: acc.ID, ProfileURL: "https://linkedin.com/in/early", Keywords: []string{"b"}, NextScanAt: now.Add(-5 * time.Hour)},
		{AccountID: acc.ID, ProfileURL: "https://linkedin.com/in/future", Keywords: []string{"c"}, NextScanAt: now.Add(time.Hour)},
	}
	for i := range profiles {
		if err := store.CreateProfile(ctx, &profiles[i]); err != nil {
			t.Fatalf("CreateProfile error: %v", err)
		}
	}

	due, err := store.DueProfiles(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueProfiles error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due profiles, got %d", len(due))
	}
	if due[0].ProfileURL != "https://linkedin.com/in/early" {
		t.Fatalf("expected oldest-due first, got %s", due[0].ProfileURL)
	}
	if due[0].Account.Plan != model.PlanBasic || due[0].Account.WebhookURL == "" {
		t.Fatalf("expected account joined, got %+v", due[0].Account)
	}
	if len(due[0].Keywords) != 1 || due[0].Keywords[0] != "b" {
		t.Fatalf("expected keywords round-trip, got %v", due[0].Keywords)
	}

	limited, err := store.DueProfiles(ctx, now, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected batch limit to apply, got %d (%v)", len(limited), err)
	}

	seen := now.Add(-24 * time.Hour)
	if err := store.UpdateProfileScan(ctx, due[0].ID, &seen, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("UpdateProfileScan error: %v", err)
	}
	got, err := store.GetProfile(ctx, due[0].ID)
	if err != nil {
		t.Fatalf("GetProfile error: %v", err)
	}
	if got.LastSeenPostTime == nil || !got.LastSeenPostTime.Equal(seen) {
		t.Fatalf("expected last seen updated, got %v", got.LastSeenPostTime)
	}
	if !got.NextScanAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expected next scan updated, got %v", got.NextScanAt)
	}

	if err := store.UpdateProfileScan(ctx, 9999, nil, now); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestScanLifecycleAndLeads(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	scan := model.EngagementScan{ID: "scan-1", PostURL: "https://p/1", ReactionTypes: []string{"LIKE"}, LimitPerType: 5}
	if err := store.CreateScan(ctx, &scan); err != nil {
		t.Fatalf("CreateScan error: %v", err)
	}
	if err := store.UpdateScanProgress(ctx, "scan-1", model.ScanCounters{TotalEngagers: 4, ProfilesEnriched: 2}); err != nil {
		t.Fatalf("UpdateScanProgress error: %v", err)
	}
	leads := []model.Lead{{Name: "A", ProfileURL: "https://linkedin.com/in/a"}, {Name: "B", ProfileURL: "https://linkedin.com/in/b"}}
	if err := store.SaveLeads(ctx, "scan-1", leads); err != nil {
		t.Fatalf("SaveLeads error: %v", err)
	}
	if err := store.FinishScan(ctx, "scan-1", model.ScanCompleted, ""); err != nil {
		t.Fatalf("FinishScan error: %v", err)
	}

	got, err := store.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan error: %v", err)
	}
	if got.Status != model.ScanCompleted || got.TotalEngagers != 4 || got.ProfilesEnriched != 2 || got.CompletedAt == nil {
		t.Fatalf("unexpected scan %+v", got)
	}

	stored, err := store.ListLeads(ctx, "scan-1")
	if err != nil {
		t.Fatalf("ListLeads error: %v", err)
	}
	if len(stored) != 2 || stored[0].Name != "A" {
		t.Fatalf("unexpected leads %+v", stored)
	}

	if _, err := store.GetScan(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
