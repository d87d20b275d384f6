package core

import (
	"context"
	"errors"
	"testing"

	"costcore/internal/infra/persistence/memory"
	"costcore/pkg/domain"
)

func TestRouterDispatchesByMode(t *testing.T) {
	ctx := context.Background()
	local := memory.NewStore(DefaultRulesEngine())
	remote := memory.NewStore(DefaultRulesEngine())
	router, err := NewRouter(local, remote, BackendLocal)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	if _, err := router.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{Name: "Local Only"})
		return err
	}); err != nil {
		t.Fatalf("local write: %v", err)
	}
	if len(local.ListProjects()) != 1 || len(remote.ListProjects()) != 0 {
		t.Fatalf("local write leaked: local=%d remote=%d", len(local.ListProjects()), len(remote.ListProjects()))
	}

	if err := router.Use(BackendRemote); err != nil {
		t.Fatalf("switch mode: %v", err)
	}
	if _, err := router.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{Name: "Remote Only"})
		return err
	}); err != nil {
		t.Fatalf("remote write: %v", err)
	}
	if len(local.ListProjects()) != 1 || len(remote.ListProjects()) != 1 {
		t.Fatalf("remote write misrouted: local=%d remote=%d", len(local.ListProjects()), len(remote.ListProjects()))
	}
}

func TestRouterNilRemoteFailsLoudly(t *testing.T) {
	ctx := context.Background()
	router, err := NewRouter(memory.NewStore(DefaultRulesEngine()), nil, BackendRemote)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	_, err = router.RunInTransaction(ctx, func(tx domain.Transaction) error { return nil })
	var unavailable domain.BackendUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected BackendUnavailableError from write, got %v", err)
	}

	err = router.View(ctx, func(domain.TransactionView) error { return nil })
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected BackendUnavailableError from view, got %v", err)
	}

	if _, ok := router.GetProject("any"); ok {
		t.Fatalf("lookup against missing remote reported success")
	}
}

func TestRouterAttachRemoteEnablesRemoteMode(t *testing.T) {
	ctx := context.Background()
	router, err := NewRouter(memory.NewStore(DefaultRulesEngine()), nil, BackendRemote)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	router.AttachRemote(memory.NewStore(DefaultRulesEngine()))

	if _, err := router.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{Name: "Attached"})
		return err
	}); err != nil {
		t.Fatalf("write after attach: %v", err)
	}
}

func TestRouterRejectsUnknownMode(t *testing.T) {
	if _, err := NewRouter(memory.NewStore(DefaultRulesEngine()), nil, "hybrid"); err == nil {
		t.Fatalf("unknown construction mode accepted")
	}
	router, err := NewRouter(memory.NewStore(DefaultRulesEngine()), nil, BackendLocal)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if err := router.Use("hybrid"); err == nil {
		t.Fatalf("unknown switch mode accepted")
	}
	if router.Mode() != BackendLocal {
		t.Fatalf("mode changed after rejected switch: %s", router.Mode())
	}
}

func TestRemoteWritesRequireIdentity(t *testing.T) {
	ctx := context.Background()
	router, err := NewRouter(memory.NewStore(DefaultRulesEngine()), memory.NewStore(DefaultRulesEngine()), BackendRemote)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	svc := NewService(router)

	_, err = svc.CreateProject(ctx, Project{Name: "No Identity"})
	var unavailable domain.BackendUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected BackendUnavailableError without identity, got %v", err)
	}

	_, err = svc.CreateProject(WithIdentity(ctx, Identity{Actor: "pm@example.com"}), Project{Name: "Partial Identity"})
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected BackendUnavailableError with incomplete identity, got %v", err)
	}

	authed := WithIdentity(ctx, Identity{Actor: "pm@example.com", Organization: "acme-builders"})
	if _, err := svc.CreateProject(authed, Project{Name: "Full Identity"}); err != nil {
		t.Fatalf("authenticated remote write failed: %v", err)
	}
}

func TestEstimateRepairRequiresIdentityOnRemote(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewStore(DefaultRulesEngine())
	router, err := NewRouter(memory.NewStore(DefaultRulesEngine()), remote, BackendRemote)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	svc := NewService(router)
	authed := WithIdentity(ctx, Identity{Actor: "pm@example.com", Organization: "acme-builders"})

	// Seed a project whose estimate has gone missing.
	project, err := svc.CreateProject(authed, Project{Name: "Orphaned"})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	estimate, _, err := svc.EstimateForProject(authed, project.ID)
	if err != nil {
		t.Fatalf("seed estimate: %v", err)
	}
	if _, err := router.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteEstimate(estimate.ID)
	}); err != nil {
		t.Fatalf("drop estimate: %v", err)
	}

	_, repaired, err := svc.EstimateForProject(ctx, project.ID)
	var unavailable domain.BackendUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("unauthenticated repair write accepted: repaired=%v err=%v", repaired, err)
	}
	if err := remote.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.EstimateByProject(project.ID); ok {
			t.Fatalf("estimate recreated despite missing identity")
		}
		return nil
	}); err != nil {
		t.Fatalf("inspect remote: %v", err)
	}

	healed, repaired, err := svc.EstimateForProject(authed, project.ID)
	if err != nil || !repaired {
		t.Fatalf("authenticated repair failed: repaired=%v err=%v", repaired, err)
	}
	if healed.ProjectID != project.ID {
		t.Fatalf("healed estimate bound to %q", healed.ProjectID)
	}

	// Reads that need no repair stay ungated.
	if _, repaired, err := svc.EstimateForProject(ctx, project.ID); err != nil || repaired {
		t.Fatalf("pure read gated or re-repaired: repaired=%v err=%v", repaired, err)
	}
}

func TestBackendParityReplay(t *testing.T) {
	ctx := context.Background()

	replay := func(t *testing.T, svc *Service) Estimate {
		t.Helper()
		project, err := svc.CreateProject(ctx, Project{Name: "Parity Build"})
		if err != nil {
			t.Fatalf("create project: %v", err)
		}
		estimate, _, err := svc.EstimateForProject(ctx, project.ID)
		if err != nil {
			t.Fatalf("estimate: %v", err)
		}
		if _, err := svc.UpdateEstimateDefaults(ctx, estimate.ID, dec("15"), dec("5")); err != nil {
			t.Fatalf("defaults: %v", err)
		}
		trade, err := svc.CreateTrade(ctx, Trade{EstimateID: estimate.ID, Name: "Electrical", CategoryKey: "electrical", LaborCost: dec("1200")})
		if err != nil {
			t.Fatalf("trade: %v", err)
		}
		if _, err := svc.CreateSubItem(ctx, SubItem{TradeID: trade.ID, Name: "Panel upgrade", MaterialCost: dec("800")}); err != nil {
			t.Fatalf("sub-item: %v", err)
		}
		got, err := svc.GetEstimate(ctx, estimate.ID)
		if err != nil {
			t.Fatalf("get estimate: %v", err)
		}
		return got
	}

	localRouter, err := NewRouter(memory.NewStore(DefaultRulesEngine()), nil, BackendLocal)
	if err != nil {
		t.Fatalf("local router: %v", err)
	}
	localResult := replay(t, NewService(localRouter))

	remoteRouter, err := NewRouter(memory.NewStore(DefaultRulesEngine()), memory.NewStore(DefaultRulesEngine()), BackendRemote)
	if err != nil {
		t.Fatalf("remote router: %v", err)
	}
	remoteSvc := NewService(remoteRouter)
	authed := WithIdentity(ctx, Identity{Actor: "pm@example.com", Organization: "acme-builders"})
	project, err := remoteSvc.CreateProject(authed, Project{Name: "Parity Build"})
	if err != nil {
		t.Fatalf("remote create project: %v", err)
	}
	estimate, _, err := remoteSvc.EstimateForProject(authed, project.ID)
	if err != nil {
		t.Fatalf("remote estimate: %v", err)
	}
	if _, err := remoteSvc.UpdateEstimateDefaults(authed, estimate.ID, dec("15"), dec("5")); err != nil {
		t.Fatalf("remote defaults: %v", err)
	}
	trade, err := remoteSvc.CreateTrade(authed, Trade{EstimateID: estimate.ID, Name: "Electrical", CategoryKey: "electrical", LaborCost: dec("1200")})
	if err != nil {
		t.Fatalf("remote trade: %v", err)
	}
	if _, err := remoteSvc.CreateSubItem(authed, SubItem{TradeID: trade.ID, Name: "Panel upgrade", MaterialCost: dec("800")}); err != nil {
		t.Fatalf("remote sub-item: %v", err)
	}
	remoteResult, err := remoteSvc.GetEstimate(authed, estimate.ID)
	if err != nil {
		t.Fatalf("remote get estimate: %v", err)
	}

	if !localResult.Subtotal.Equal(remoteResult.Subtotal) ||
		!localResult.GrossProfit.Equal(remoteResult.GrossProfit) ||
		!localResult.Contingency.Equal(remoteResult.Contingency) ||
		!localResult.TotalEstimated.Equal(remoteResult.TotalEstimated) {
		t.Fatalf("backend totals diverge: local=%+v remote=%+v", localResult, remoteResult)
	}
}
