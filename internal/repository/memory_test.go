package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"nexus/internal/model"
)

func newProject(id string) *model.Project {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Project{
		ID:        id,
		Name:      "Apollo",
		Status:    model.ProjectActive,
		Priority:  model.PriorityHigh,
		CreatedBy: "u1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStoreRejectsStaleSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, newProject("p1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	a, _ := store.Get(ctx, "p1")
	b, _ := store.Get(ctx, "p1")

	a.Name = "first"
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("Save a: %v", err)
	}
	if a.Version != 2 {
		t.Errorf("version after save = %d, want 2", a.Version)
	}

	b.Name = "second"
	if err := store.Save(ctx, b); !errors.Is(err, model.ErrVersionConflict) {
		t.Fatalf("Save b err = %v, want ErrVersionConflict", err)
	}

	got, _ := store.Get(ctx, "p1")
	if got.Name != "first" {
		t.Errorf("name = %q, want first", got.Name)
	}
}

func TestMemoryStoreSaveBriefKeepsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := newProject("p1")
	_ = store.Create(ctx, p)

	at := p.UpdatedAt.Add(time.Minute)
	if err := store.SaveBrief(ctx, "p1", model.ExecutiveBrief{Content: []byte(`{"summary":"ok"}`), GeneratedAt: at}); err != nil {
		t.Fatalf("SaveBrief: %v", err)
	}

	got, _ := store.Get(ctx, "p1")
	if got.Version != 1 || !got.UpdatedAt.Equal(p.UpdatedAt) {
		t.Errorf("version=%d updatedAt=%v, brief must not touch them", got.Version, got.UpdatedAt)
	}
	if got.ExecutiveBrief == nil || string(got.ExecutiveBrief.Content) != `{"summary":"ok"}` {
		t.Errorf("brief = %+v", got.ExecutiveBrief)
	}

	// a later Save keeps the stored brief
	got.Description = "changed"
	if err := store.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, _ := store.Get(ctx, "p1")
	if again.ExecutiveBrief == nil {
		t.Error("brief lost after Save")
	}
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, newProject("p1"))

	calls := 0
	p, err := Update(ctx, store, "p1", func(p *model.Project) error {
		calls++
		if calls == 1 {
			// a concurrent writer lands between our read and our save
			other, _ := store.Get(ctx, "p1")
			other.Description = "concurrent"
			if err := store.Save(ctx, other); err != nil {
				t.Fatalf("concurrent save: %v", err)
			}
		}
		p.AddMember("alice@example.com")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if p.Description != "concurrent" || len(p.TeamMembers) != 1 {
		t.Errorf("lost update: %+v", p)
	}
}

func TestUpdateUnchangedSkipsSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, newProject("p1"))

	p, err := Update(ctx, store, "p1", func(p *model.Project) error {
		return ErrUnchanged
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if p.Version != 1 {
		t.Errorf("returned version = %d, want 1", p.Version)
	}
	stored, _ := store.Get(ctx, "p1")
	if stored.Version != 1 {
		t.Errorf("stored version = %d, want 1", stored.Version)
	}
}

func TestMemoryStoreListForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	owned := newProject("p1")
	shared := newProject("p2")
	shared.CreatedBy = "u2"
	shared.TeamMembers = []string{"Alice@Example.com"}
	other := newProject("p3")
	other.CreatedBy = "u3"
	for _, p := range []*model.Project{owned, shared, other} {
		_ = store.Create(ctx, p)
	}

	got, err := store.ListForUser(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	ids := map[string]bool{}
	for _, p := range got {
		ids[p.ID] = true
	}
	if len(got) != 2 || !ids["p1"] || !ids["p2"] {
		t.Errorf("ids = %v, want p1 and p2", ids)
	}
}
