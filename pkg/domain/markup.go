package domain

import "github.com/shopspring/decimal"

// MarkupDefaults is the versioned global markup configuration. The version
// bumps whenever the default changes so persisted records can be audited
// against the default that priced them.
type MarkupDefaults struct {
	Version int
	Percent decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)

	// currentMarkupDefaults is the single source of the global default markup.
	currentMarkupDefaults = MarkupDefaults{Version: 2, Percent: decimal.NewFromInt(20)}

	// legacyMarkupSentinel is the magic default the original data carried.
	// Records still holding it are priced with the current global default.
	legacyMarkupSentinel = decimal.NewFromFloat(11.1)
)

// CurrentMarkupDefaults returns the active global markup configuration.
func CurrentMarkupDefaults() MarkupDefaults {
	return currentMarkupDefaults
}

// GlobalDefaultMarkupPercent returns the global fallback markup percentage.
func GlobalDefaultMarkupPercent() decimal.Decimal {
	return currentMarkupDefaults.Percent
}

// NormalizeMarkupPercent maps the legacy sentinel default to the current
// global default. It is the single boundary where the sentinel is handled;
// call sites never compare against the magic number themselves.
func NormalizeMarkupPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.Equal(legacyMarkupSentinel) {
		return currentMarkupDefaults.Percent
	}
	return pct
}

// EffectiveMarkupPercent resolves the markup applied to a trade: the trade's
// own override when set, else the estimate default, else the global default.
// The estimate default passes through legacy normalization. A zero estimate
// default means unset; a deliberate 0% markup is expressed through per-trade
// overrides, which are honored at zero.
func EffectiveMarkupPercent(trade Trade, estimate Estimate) decimal.Decimal {
	if trade.MarkupPercent != nil {
		return NormalizeMarkupPercent(*trade.MarkupPercent)
	}
	if !estimate.DefaultMarkupPercent.IsZero() {
		return NormalizeMarkupPercent(estimate.DefaultMarkupPercent)
	}
	return currentMarkupDefaults.Percent
}

// SumSubItemCosts returns the component-wise sums over a trade's sub-items.
func SumSubItemCosts(items []SubItem) (labor, material, subcontractor decimal.Decimal) {
	for _, it := range items {
		labor = labor.Add(it.LaborCost)
		material = material.Add(it.MaterialCost)
		subcontractor = subcontractor.Add(it.SubcontractorCost)
	}
	return labor, material, subcontractor
}

// RollupTrade applies the sub-item rollup to a trade. With one or more
// sub-items the trade's direct cost fields are overwritten by the component
// sums; with none they are left untouched. TotalCost is always recomputed
// from the (possibly new) direct fields.
func RollupTrade(trade Trade, items []SubItem) Trade {
	if len(items) > 0 {
		trade.LaborCost, trade.MaterialCost, trade.SubcontractorCost = SumSubItemCosts(items)
	}
	trade.TotalCost = trade.LaborCost.Add(trade.MaterialCost).Add(trade.SubcontractorCost)
	return trade
}

// RollupSubItem recomputes a sub-item's derived total from its components.
func RollupSubItem(item SubItem) SubItem {
	item.TotalCost = item.LaborCost.Add(item.MaterialCost).Add(item.SubcontractorCost)
	return item
}

// ComputeEstimateTotals derives the estimate-level totals from the current
// trade set. Pure function of its inputs; calling it repeatedly with the same
// state yields identical totals.
//
//	subtotal    = Σ trade.totalCost
//	grossProfit = Σ trade.totalCost × effectiveMarkup(trade)/100
//	contingency = subtotal × defaultContingencyPercent/100
//	total       = subtotal + grossProfit + contingency
func ComputeEstimateTotals(estimate Estimate, trades []Trade) EstimateSummary {
	var subtotal, profit decimal.Decimal
	for _, t := range trades {
		subtotal = subtotal.Add(t.TotalCost)
		markup := EffectiveMarkupPercent(t, estimate)
		profit = profit.Add(t.TotalCost.Mul(markup).Div(hundred))
	}
	contingency := subtotal.Mul(estimate.DefaultContingencyPercent).Div(hundred)
	return EstimateSummary{
		Subtotal:       subtotal,
		GrossProfit:    profit,
		Contingency:    contingency,
		TotalEstimated: subtotal.Add(profit).Add(contingency),
	}
}
