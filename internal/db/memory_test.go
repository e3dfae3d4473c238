package db

import (
	"context"
	"testing"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

func TestResolutionMemory(t *testing.T) {
	db, org, _ := openTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.QueryResolution(ctx, org.ID, "john", entity.KindMember); err != nil || ok {
		t.Fatalf("expected empty memory, got ok=%v err=%v", ok, err)
	}

	if err := db.StoreResolution(ctx, org.ID, "  John ", entity.KindMember, "m1", 0.8); err != nil {
		t.Fatalf("failed to store resolution: %v", err)
	}
	id, ok, err := db.QueryResolution(ctx, org.ID, "JOHN", entity.KindMember)
	if err != nil {
		t.Fatalf("failed to query resolution: %v", err)
	}
	if !ok || id != "m1" {
		t.Errorf("expected m1, got %q (ok=%v)", id, ok)
	}

	// Overwrite
	if err := db.StoreResolution(ctx, org.ID, "john", entity.KindMember, "m2", 1); err != nil {
		t.Fatalf("failed to overwrite resolution: %v", err)
	}
	id, _, _ = db.QueryResolution(ctx, org.ID, "john", entity.KindMember)
	if id != "m2" {
		t.Errorf("expected overwrite to m2, got %q", id)
	}

	// Scoped by type and organisation
	if _, ok, _ := db.QueryResolution(ctx, org.ID, "john", entity.KindTeam); ok {
		t.Error("memory should be scoped by entity type")
	}
	if _, ok, _ := db.QueryResolution(ctx, "other-org", "john", entity.KindMember); ok {
		t.Error("memory should be scoped by organisation")
	}
}

func TestResolutionAudit(t *testing.T) {
	db, org, _ := openTestDB(t)
	ctx := context.Background()

	if err := db.LogResolution(ctx, org.ID, "u1", "Garage", "space", true, "s1"); err != nil {
		t.Fatalf("failed to log resolution: %v", err)
	}
	if err := db.LogResolution(ctx, org.ID, "u1", "john", "person", false, ""); err != nil {
		t.Fatalf("failed to log resolution: %v", err)
	}

	entries, err := db.ListResolutionAudit(ctx, org.ID, 10)
	if err != nil {
		t.Fatalf("failed to list audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ChipLabel != "john" || entries[0].Resolved {
		t.Errorf("expected newest entry first, got %+v", entries[0])
	}
	if entries[1].EntityID != "s1" || !entries[1].Resolved {
		t.Errorf("unexpected entry %+v", entries[1])
	}
}

func TestLastUsedProperty(t *testing.T) {
	db, org, prop := openTestDB(t)
	ctx := context.Background()

	got, err := db.GetLastUsedProperty(ctx, org.ID, "u1")
	if err != nil || got != "" {
		t.Fatalf("expected no last property, got %q err=%v", got, err)
	}
	if err := db.SetLastUsedProperty(ctx, org.ID, "u1", prop.ID); err != nil {
		t.Fatalf("failed to set last property: %v", err)
	}
	if got, _ := db.GetLastUsedProperty(ctx, org.ID, "u1"); got != prop.ID {
		t.Errorf("expected %s, got %q", prop.ID, got)
	}
	if got, _ := db.GetLastUsedProperty(ctx, org.ID, "u2"); got != "" {
		t.Errorf("last property should be per user, got %q", got)
	}
}

func TestDraftSnapshots(t *testing.T) {
	db, org, _ := openTestDB(t)
	ctx := context.Background()

	d := &DraftSnapshot{ID: "d1", OrgID: org.ID, UserID: "u1", State: `{"title":"a"}`}
	if err := db.SaveDraft(ctx, d); err != nil {
		t.Fatalf("failed to save draft: %v", err)
	}
	d.State = `{"title":"b"}`
	if err := db.SaveDraft(ctx, d); err != nil {
		t.Fatalf("failed to resave draft: %v", err)
	}

	got, err := db.GetDraft(ctx, "d1")
	if err != nil || got == nil {
		t.Fatalf("failed to get draft: %v", err)
	}
	if got.State != `{"title":"b"}` {
		t.Errorf("expected replaced state, got %s", got.State)
	}

	list, err := db.ListDrafts(ctx, org.ID, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one draft, got %d err=%v", len(list), err)
	}

	if err := db.DeleteDraft(ctx, "d1"); err != nil {
		t.Fatalf("failed to delete draft: %v", err)
	}
	if got, _ := db.GetDraft(ctx, "d1"); got != nil {
		t.Error("expected draft to be deleted")
	}
}
