package core

import (
	"context"

	"costcore/pkg/domain"
)

// recalcTradeTx rolls a trade up from its sub-items inside an open
// transaction. Trades without sub-items keep their direct cost fields and only
// refresh the derived total.
func (s *Service) recalcTradeTx(tx domain.Transaction, tradeID string) (Trade, error) {
	items := tx.SubItemsByTrade(tradeID)
	return tx.UpdateTrade(tradeID, func(t *Trade) error {
		*t = domain.RollupTrade(*t, items)
		return nil
	})
}

// recalcEstimateTx recomputes the estimate totals from its current trade set
// and refreshes the denormalized summary on the owning project, all inside an
// open transaction.
func (s *Service) recalcEstimateTx(tx domain.Transaction, estimateID string) (Estimate, error) {
	estimate, ok := tx.FindEstimate(estimateID)
	if !ok {
		return Estimate{}, domain.NotFoundError{Entity: domain.EntityEstimate, ID: estimateID}
	}
	summary := domain.ComputeEstimateTotals(estimate, tx.TradesByEstimate(estimateID))
	updated, err := tx.UpdateEstimate(estimateID, func(e *Estimate) error {
		e.Subtotal = summary.Subtotal
		e.GrossProfit = summary.GrossProfit
		e.Contingency = summary.Contingency
		e.TotalEstimated = summary.TotalEstimated
		return nil
	})
	if err != nil {
		return Estimate{}, err
	}
	if _, ok := tx.FindProject(estimate.ProjectID); ok {
		if _, err := tx.UpdateProject(estimate.ProjectID, func(p *Project) error {
			p.Summary = summary
			return nil
		}); err != nil {
			return Estimate{}, err
		}
	}
	return updated, nil
}

// RecalculateTrade recomputes one trade's rollup and refreshes the owning
// estimate's totals. Idempotent: repeated calls with unchanged inputs leave
// stored values identical.
func (s *Service) RecalculateTrade(ctx context.Context, tradeID string) (Trade, error) {
	var trade Trade
	err := s.instrument(ctx, "recalculate_trade", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			trade, err = s.recalcTradeTx(tx, tradeID)
			if err != nil {
				return err
			}
			_, err = s.recalcEstimateTx(tx, trade.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return trade, err
}

// RecalculateEstimate recomputes the estimate totals from its current trades.
// Idempotent repair entry point for historical data.
func (s *Service) RecalculateEstimate(ctx context.Context, estimateID string) (Estimate, error) {
	var estimate Estimate
	err := s.instrument(ctx, "recalculate_estimate", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			estimate, err = s.recalcEstimateTx(tx, estimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return estimate, err
}
