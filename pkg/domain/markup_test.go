package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeEstimateTotalsFixture(t *testing.T) {
	// Two trades at 100 and 200, estimate markup 20%, contingency 10%:
	// subtotal 300, profit 60, contingency 30, total 390.
	estimate := Estimate{
		DefaultMarkupPercent:      dec("20"),
		DefaultContingencyPercent: dec("10"),
	}
	trades := []Trade{
		{TotalCost: dec("100")},
		{TotalCost: dec("200")},
	}

	summary := ComputeEstimateTotals(estimate, trades)

	if !summary.Subtotal.Equal(dec("300")) {
		t.Fatalf("subtotal = %s, want 300", summary.Subtotal)
	}
	if !summary.GrossProfit.Equal(dec("60")) {
		t.Fatalf("gross profit = %s, want 60", summary.GrossProfit)
	}
	if !summary.Contingency.Equal(dec("30")) {
		t.Fatalf("contingency = %s, want 30", summary.Contingency)
	}
	if !summary.TotalEstimated.Equal(dec("390")) {
		t.Fatalf("total = %s, want 390", summary.TotalEstimated)
	}
}

func TestComputeEstimateTotalsIsPure(t *testing.T) {
	estimate := Estimate{DefaultMarkupPercent: dec("15"), DefaultContingencyPercent: dec("5")}
	trades := []Trade{{TotalCost: dec("123.45")}, {TotalCost: dec("0.55")}}

	first := ComputeEstimateTotals(estimate, trades)
	second := ComputeEstimateTotals(estimate, trades)

	if !first.TotalEstimated.Equal(second.TotalEstimated) || !first.GrossProfit.Equal(second.GrossProfit) {
		t.Fatalf("repeated computation diverged: %+v vs %+v", first, second)
	}
}

func TestComputeEstimateTotalsEmptyTradeSet(t *testing.T) {
	summary := ComputeEstimateTotals(Estimate{DefaultContingencyPercent: dec("10")}, nil)
	if !summary.TotalEstimated.IsZero() || !summary.Subtotal.IsZero() {
		t.Fatalf("empty estimate should total zero, got %+v", summary)
	}
}

func TestNormalizeMarkupPercent(t *testing.T) {
	cases := []struct {
		name string
		in   decimal.Decimal
		want decimal.Decimal
	}{
		{"legacy sentinel maps to global default", dec("11.1"), dec("20")},
		{"explicit value passes through", dec("11.2"), dec("11.2")},
		{"zero passes through", dec("0"), dec("0")},
		{"global default passes through", dec("20"), dec("20")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeMarkupPercent(tc.in); !got.Equal(tc.want) {
				t.Fatalf("NormalizeMarkupPercent(%s) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestEffectiveMarkupPercentPrecedence(t *testing.T) {
	override := dec("35")
	legacy := dec("11.1")
	zero := dec("0")

	cases := []struct {
		name     string
		trade    Trade
		estimate Estimate
		want     decimal.Decimal
	}{
		{"trade override wins", Trade{MarkupPercent: &override}, Estimate{DefaultMarkupPercent: dec("10")}, dec("35")},
		{"estimate default when no override", Trade{}, Estimate{DefaultMarkupPercent: dec("12")}, dec("12")},
		{"global default when both unset", Trade{}, Estimate{}, dec("20")},
		{"legacy trade override normalized", Trade{MarkupPercent: &legacy}, Estimate{DefaultMarkupPercent: dec("12")}, dec("20")},
		{"legacy estimate default normalized", Trade{}, Estimate{DefaultMarkupPercent: dec("11.1")}, dec("20")},
		{"zero estimate default means unset", Trade{}, Estimate{DefaultMarkupPercent: dec("0")}, dec("20")},
		{"zero trade override honored", Trade{MarkupPercent: &zero}, Estimate{DefaultMarkupPercent: dec("12")}, dec("0")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveMarkupPercent(tc.trade, tc.estimate); !got.Equal(tc.want) {
				t.Fatalf("EffectiveMarkupPercent = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRollupTradeWithSubItems(t *testing.T) {
	trade := Trade{
		LaborCost:    dec("999"), // overwritten by sub-item sums
		MaterialCost: dec("999"),
	}
	items := []SubItem{
		{LaborCost: dec("40"), MaterialCost: dec("60"), SubcontractorCost: dec("0")},
		{LaborCost: dec("10"), MaterialCost: dec("0"), SubcontractorCost: dec("90")},
	}

	rolled := RollupTrade(trade, items)

	if !rolled.LaborCost.Equal(dec("50")) || !rolled.MaterialCost.Equal(dec("60")) || !rolled.SubcontractorCost.Equal(dec("90")) {
		t.Fatalf("component sums wrong: %+v", rolled)
	}
	if !rolled.TotalCost.Equal(dec("200")) {
		t.Fatalf("total = %s, want 200", rolled.TotalCost)
	}
}

func TestRollupTradeWithoutSubItemsKeepsDirectCosts(t *testing.T) {
	trade := Trade{LaborCost: dec("70"), MaterialCost: dec("20"), SubcontractorCost: dec("10")}

	rolled := RollupTrade(trade, nil)

	if !rolled.LaborCost.Equal(dec("70")) {
		t.Fatalf("direct labor cost modified: %s", rolled.LaborCost)
	}
	if !rolled.TotalCost.Equal(dec("100")) {
		t.Fatalf("total = %s, want 100", rolled.TotalCost)
	}
}

func TestRollupSubItem(t *testing.T) {
	item := RollupSubItem(SubItem{LaborCost: dec("1.10"), MaterialCost: dec("2.20"), SubcontractorCost: dec("3.30")})
	if !item.TotalCost.Equal(dec("6.60")) {
		t.Fatalf("total = %s, want 6.60", item.TotalCost)
	}
}

func TestCurrentMarkupDefaultsVersioned(t *testing.T) {
	defaults := CurrentMarkupDefaults()
	if defaults.Version < 2 {
		t.Fatalf("markup defaults version = %d, want >= 2", defaults.Version)
	}
	if !defaults.Percent.Equal(GlobalDefaultMarkupPercent()) {
		t.Fatalf("defaults percent %s != global %s", defaults.Percent, GlobalDefaultMarkupPercent())
	}
}
