package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"costcore/pkg/domain"
)

// ImportRow is one normalized line handed over by an external takeoff or
// spreadsheet import. The adapter stays thin: rows carry raw costs and keys,
// and all pricing derivation happens through the regular write pipeline.
type ImportRow struct {
	Name              string
	CategoryKey       string
	Quantity          decimal.Decimal
	Unit              string
	LaborCost         decimal.Decimal
	MaterialCost      decimal.Decimal
	SubcontractorCost decimal.Decimal
	// TotalCost is accepted from the source tuple but never trusted: the
	// stored total is recomputed from the component costs on write.
	TotalCost       decimal.Decimal
	MarkupPercent   *decimal.Decimal
	IsSubcontracted bool
	WasteFactor     decimal.Decimal
}

// ImportTrades bulk-creates trades from import rows under one estimate. All
// rows are validated up front and written in a single transaction with exactly
// one totals recomputation at the end; a bad row rejects the whole batch.
func (s *Service) ImportTrades(ctx context.Context, estimateID string, rows []ImportRow) ([]Trade, error) {
	var created []Trade
	err := s.instrument(ctx, "import_trades", func(ctx context.Context) error {
		if len(rows) == 0 {
			return domain.ValidationError{Field: "rows", Reason: "import batch is empty"}
		}
		for i, row := range rows {
			if strings.TrimSpace(row.Name) == "" {
				return domain.ValidationError{Field: "name", Reason: fmt.Sprintf("row %d: trade name is required", i+1)}
			}
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindEstimate(estimateID); !ok {
				return domain.NotFoundError{Entity: domain.EntityEstimate, ID: estimateID}
			}
			for _, row := range rows {
				trade := domain.RollupTrade(Trade{
					EstimateID:        estimateID,
					Name:              row.Name,
					CategoryKey:       row.CategoryKey,
					CategoryGroup:     GroupForCategoryKey(row.CategoryKey),
					Quantity:          row.Quantity,
					Unit:              row.Unit,
					LaborCost:         row.LaborCost,
					MaterialCost:      row.MaterialCost,
					SubcontractorCost: row.SubcontractorCost,
					MarkupPercent:     row.MarkupPercent,
					IsSubcontracted:   row.IsSubcontracted,
					WasteFactor:       row.WasteFactor,
				}, nil)
				stored, err := tx.CreateTrade(trade)
				if err != nil {
					return err
				}
				created = append(created, stored)
			}
			_, err := s.recalcEstimateTx(tx, estimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
