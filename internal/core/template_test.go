package core

import (
	"context"
	"errors"
	"testing"

	"costcore/pkg/domain"
)

func TestTemplateRoundTripPreservesTotals(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	_, source := seedProject(t, svc)

	if _, err := svc.UpdateEstimateDefaults(ctx, source.ID, dec("20"), dec("10")); err != nil {
		t.Fatalf("source defaults: %v", err)
	}
	if _, err := svc.CreateTrade(ctx, Trade{EstimateID: source.ID, Name: "Framing", CategoryKey: "framing", LaborCost: dec("100")}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if _, err := svc.CreateTrade(ctx, Trade{EstimateID: source.ID, Name: "Roofing", CategoryKey: "roofing", MaterialCost: dec("200")}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	sourceTotals, err := svc.GetEstimate(ctx, source.ID)
	if err != nil {
		t.Fatalf("source totals: %v", err)
	}

	template, err := svc.CreateTemplate(ctx, "Two Trade Shell", source.ID)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if len(template.Trades) != 2 {
		t.Fatalf("snapshot trades = %d, want 2", len(template.Trades))
	}

	targetProject, err := svc.CreateProject(ctx, Project{Name: "Copy of Shell"})
	if err != nil {
		t.Fatalf("target project: %v", err)
	}
	target, _, err := svc.EstimateForProject(ctx, targetProject.ID)
	if err != nil {
		t.Fatalf("target estimate: %v", err)
	}
	if _, err := svc.UpdateEstimateDefaults(ctx, target.ID, dec("20"), dec("10")); err != nil {
		t.Fatalf("target defaults: %v", err)
	}

	applied, err := svc.ApplyTemplate(ctx, template.ID, target.ID)
	if err != nil {
		t.Fatalf("apply template: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied trades = %d, want 2", len(applied))
	}
	for _, tr := range applied {
		if tr.ID == "" || tr.EstimateID != target.ID {
			t.Fatalf("applied trade missing fresh identity: %+v", tr)
		}
	}

	targetTotals, err := svc.GetEstimate(ctx, target.ID)
	if err != nil {
		t.Fatalf("target totals: %v", err)
	}
	if !targetTotals.TotalEstimated.Equal(sourceTotals.TotalEstimated) {
		t.Fatalf("round-trip total = %s, want %s", targetTotals.TotalEstimated, sourceTotals.TotalEstimated)
	}
}

func TestApplyTemplateBumpsUsageAndLinksProject(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	targetProject, source := seedProject(t, svc)
	if _, err := svc.CreateTrade(ctx, Trade{EstimateID: source.ID, Name: "Demo", LaborCost: dec("50")}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	template, err := svc.CreateTemplate(ctx, "Demo Shell", source.ID)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.ApplyTemplate(ctx, template.ID, source.ID); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	got, err := svc.GetTemplate(ctx, template.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got.UsageCount != 2 {
		t.Fatalf("usage count = %d, want 2", got.UsageCount)
	}
	if len(got.LinkedProjectIDs) != 1 || got.LinkedProjectIDs[0] != targetProject.ID {
		t.Fatalf("linked projects = %v, want exactly [%s]", got.LinkedProjectIDs, targetProject.ID)
	}
}

func TestApplyTemplateMarkupResolution(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	_, source := seedProject(t, svc)

	if _, err := svc.UpdateEstimateDefaults(ctx, source.ID, dec("17"), dec("0")); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	override := dec("25")
	if _, err := svc.CreateTrade(ctx, Trade{EstimateID: source.ID, Name: "Override", LaborCost: dec("10"), MarkupPercent: &override}); err != nil {
		t.Fatalf("override trade: %v", err)
	}
	if _, err := svc.CreateTrade(ctx, Trade{EstimateID: source.ID, Name: "Inherits", LaborCost: dec("10")}); err != nil {
		t.Fatalf("plain trade: %v", err)
	}
	template, err := svc.CreateTemplate(ctx, "Markup Mix", source.ID)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	applied, err := svc.ApplyTemplate(ctx, template.ID, source.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	byName := map[string]Trade{}
	for _, tr := range applied {
		byName[tr.Name] = tr
	}
	if got := byName["Override"].MarkupPercent; got == nil || !got.Equal(dec("25")) {
		t.Fatalf("override markup lost: %v", got)
	}
	if got := byName["Inherits"].MarkupPercent; got == nil || !got.Equal(dec("17")) {
		t.Fatalf("template default not applied: %v", got)
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	_, estimate := seedProject(t, svc)

	_, err := svc.CreateTemplate(ctx, "  ", estimate.ID)
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for blank name, got %v", err)
	}

	_, err = svc.CreateTemplate(ctx, "Orphan", "missing-estimate")
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) || notFound.Entity != domain.EntityEstimate {
		t.Fatalf("expected estimate NotFoundError, got %v", err)
	}
}

func TestDeleteTemplateLeavesAppliedTrades(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	_, estimate := seedProject(t, svc)
	if _, err := svc.CreateTrade(ctx, Trade{EstimateID: estimate.ID, Name: "Demo", LaborCost: dec("75")}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	template, err := svc.CreateTemplate(ctx, "Short Lived", estimate.ID)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	applied, err := svc.ApplyTemplate(ctx, template.ID, estimate.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.DeleteTemplate(ctx, template.ID); err != nil {
		t.Fatalf("delete template: %v", err)
	}

	if _, err := svc.GetTemplate(ctx, template.ID); err == nil {
		t.Fatalf("deleted template still readable")
	}
	for _, tr := range applied {
		if _, err := svc.GetTrade(ctx, tr.ID); err != nil {
			t.Fatalf("applied trade lost after template delete: %v", err)
		}
	}
}
