package core

import (
	"context"
	"errors"
	"testing"

	"costcore/pkg/domain"
)

func TestResolveCategoryPrecedence(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()

	builtin := svc.ResolveCategory(ctx, "plumbing")
	if builtin.Source != CategorySourceBuiltin || builtin.Label != "Plumbing" || builtin.Group != "mechanicals" {
		t.Fatalf("builtin resolution: %+v", builtin)
	}

	if _, err := svc.CreateCategory(ctx, Category{Key: "Plumbing", Label: "Wet Trades", Icon: "droplet"}); err != nil {
		t.Fatalf("create registry entry: %v", err)
	}
	registry := svc.ResolveCategory(ctx, "plumbing")
	if registry.Source != CategorySourceRegistry || registry.Label != "Wet Trades" {
		t.Fatalf("registry should win over builtin: %+v", registry)
	}

	derived := svc.ResolveCategory(ctx, "solar-panels")
	if derived.Source != CategorySourceDerived || derived.Label != "Solar Panels" || derived.Group != "general" {
		t.Fatalf("derived resolution: %+v", derived)
	}
}

func TestResolveCategoryNormalizesKey(t *testing.T) {
	svc, _ := newLocalService(t)
	got := svc.ResolveCategory(context.Background(), "  HVAC  ")
	if got.Key != "hvac" || got.Source != CategorySourceBuiltin {
		t.Fatalf("key not normalized: %+v", got)
	}
}

func TestGroupForCategoryKeyFallback(t *testing.T) {
	if got := GroupForCategoryKey("electrical"); got != "mechanicals" {
		t.Fatalf("electrical group = %q", got)
	}
	if got := GroupForCategoryKey("solar-panels"); got != "general" {
		t.Fatalf("unknown key group = %q, want general", got)
	}
}

func TestCreateCategoryRejectsDuplicateKey(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	if _, err := svc.CreateCategory(ctx, Category{Key: "smart-home", Label: "Smart Home"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateCategory(ctx, Category{Key: "SMART-HOME", Label: "Duplicate"})
	var conflict domain.KeyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected KeyConflictError, got %v", err)
	}
}

func TestEnsureSystemCategoriesIdempotent(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()

	if err := svc.EnsureSystemCategories(ctx); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	first, err := svc.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != len(builtinCategories) {
		t.Fatalf("seeded %d categories, want %d", len(first), len(builtinCategories))
	}
	for _, c := range first {
		if !c.System {
			t.Fatalf("seeded entry not marked system: %+v", c)
		}
	}

	if err := svc.EnsureSystemCategories(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	second, err := svc.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list again: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("reseed changed count: %d -> %d", len(first), len(second))
	}
}

func TestListCategoriesOrdering(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	for _, c := range []Category{
		{Key: "zeta", Label: "Zeta", SortOrder: 5},
		{Key: "alpha", Label: "Alpha", SortOrder: 5},
		{Key: "omega", Label: "Omega", SortOrder: 1},
	} {
		if _, err := svc.CreateCategory(ctx, c); err != nil {
			t.Fatalf("create %s: %v", c.Key, err)
		}
	}
	got, err := svc.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Key != "omega" || got[1].Key != "alpha" || got[2].Key != "zeta" {
		t.Fatalf("ordering wrong: %v", []string{got[0].Key, got[1].Key, got[2].Key})
	}
}

func TestDeleteCategoryFallsBackToDerived(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	created, err := svc.CreateCategory(ctx, Category{Key: "green-roof", Label: "Living Roof"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.DeleteCategory(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := svc.ResolveCategory(ctx, "green-roof")
	if got.Source != CategorySourceDerived || got.Label != "Green Roof" {
		t.Fatalf("fallback after delete: %+v", got)
	}
}
