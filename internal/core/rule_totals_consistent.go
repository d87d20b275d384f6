package core

import (
	"context"
	"fmt"

	"costcore/pkg/domain"
)

// EstimateTotalsRule warns when an estimate's stored totals drift from the
// values recomputed over its trade set. It never blocks: drift in historical
// data is repaired by the recalculation entry points, not by rejecting writes.
func EstimateTotalsRule() domain.Rule {
	return estimateTotalsRule{}
}

type estimateTotalsRule struct{}

func (estimateTotalsRule) Name() string { return "estimate_totals_consistent" }

func (estimateTotalsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, id := range touchedEstimateIDs(changes) {
		estimate, ok := view.FindEstimate(id)
		if !ok {
			continue
		}
		summary := domain.ComputeEstimateTotals(estimate, view.TradesByEstimate(id))
		if summary.Subtotal.Equal(estimate.Subtotal) &&
			summary.GrossProfit.Equal(estimate.GrossProfit) &&
			summary.Contingency.Equal(estimate.Contingency) &&
			summary.TotalEstimated.Equal(estimate.TotalEstimated) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "estimate_totals_consistent",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("estimate %s totals diverge from trade rollup (stored total %s, computed %s)", id, estimate.TotalEstimated, summary.TotalEstimated),
			Entity:   domain.EntityEstimate,
			EntityID: id,
		})
	}
	return res, nil
}

// touchedEstimateIDs collects the estimates affected by a change set, in
// first-touched order.
func touchedEstimateIDs(changes []domain.Change) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, change := range changes {
		switch v := change.After.(type) {
		case domain.Estimate:
			add(v.ID)
		case domain.Trade:
			add(v.EstimateID)
		}
		switch v := change.Before.(type) {
		case domain.Estimate:
			add(v.ID)
		case domain.Trade:
			add(v.EstimateID)
		}
	}
	return ids
}
