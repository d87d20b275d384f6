package core

import (
	"context"
	"strings"

	"costcore/pkg/domain"
)

// CreateTrade persists a new trade line item and recomputes the owning
// estimate's totals in the same transaction.
func (s *Service) CreateTrade(ctx context.Context, trade Trade) (Trade, error) {
	var created Trade
	err := s.instrument(ctx, "create_trade", func(ctx context.Context) error {
		if strings.TrimSpace(trade.Name) == "" {
			return domain.ValidationError{Field: "name", Reason: "trade name is required"}
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		if trade.CategoryGroup == "" {
			trade.CategoryGroup = GroupForCategoryKey(trade.CategoryKey)
		}
		trade = domain.RollupTrade(trade, nil)
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateTrade(trade)
			if err != nil {
				return err
			}
			_, err = s.recalcEstimateTx(tx, created.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return created, err
}

// GetTrade returns a trade by id from the active backend.
func (s *Service) GetTrade(ctx context.Context, id string) (Trade, error) {
	var trade Trade
	err := s.instrument(ctx, "get_trade", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			found, ok := view.FindTrade(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTrade, ID: id}
			}
			trade = found
			return nil
		})
	})
	return trade, err
}

// TradesForEstimate lists an estimate's trades ordered by position.
func (s *Service) TradesForEstimate(ctx context.Context, estimateID string) ([]Trade, error) {
	var trades []Trade
	err := s.instrument(ctx, "trades_for_estimate", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			if _, ok := view.FindEstimate(estimateID); !ok {
				return domain.NotFoundError{Entity: domain.EntityEstimate, ID: estimateID}
			}
			trades = view.TradesByEstimate(estimateID)
			return nil
		})
	})
	return trades, err
}

// UpdateTrade mutates a trade, re-derives its category grouping when the key
// changed (mirroring the new group onto its sub-items), and recomputes the
// trade rollup plus the owning estimate totals in the same transaction.
func (s *Service) UpdateTrade(ctx context.Context, id string, mutator func(*Trade) error) (Trade, error) {
	var updated Trade
	err := s.instrument(ctx, "update_trade", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			before, ok := tx.FindTrade(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTrade, ID: id}
			}
			after, err := tx.UpdateTrade(id, mutator)
			if err != nil {
				return err
			}
			if after.CategoryKey != before.CategoryKey {
				group := GroupForCategoryKey(after.CategoryKey)
				if _, err := tx.UpdateTrade(id, func(t *Trade) error {
					t.CategoryGroup = group
					return nil
				}); err != nil {
					return err
				}
				for _, item := range tx.SubItemsByTrade(id) {
					if _, err := tx.UpdateSubItem(item.ID, func(si *SubItem) error {
						si.CategoryGroup = group
						return nil
					}); err != nil {
						return err
					}
				}
			}
			updated, err = s.recalcTradeTx(tx, id)
			if err != nil {
				return err
			}
			_, err = s.recalcEstimateTx(tx, updated.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return updated, err
}

// DeleteTrade removes a trade (cascading to its sub-items) and recomputes the
// owning estimate totals.
func (s *Service) DeleteTrade(ctx context.Context, id string) error {
	return s.instrument(ctx, "delete_trade", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			trade, ok := tx.FindTrade(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTrade, ID: id}
			}
			if err := tx.DeleteTrade(id); err != nil {
				return err
			}
			_, err := s.recalcEstimateTx(tx, trade.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
}

// CreateSubItem persists a new sub-item under a trade, then re-rolls the trade
// and estimate in the same transaction. Once a trade has sub-items, its direct
// cost fields become derived sums.
func (s *Service) CreateSubItem(ctx context.Context, item SubItem) (SubItem, error) {
	var created SubItem
	err := s.instrument(ctx, "create_sub_item", func(ctx context.Context) error {
		if strings.TrimSpace(item.Name) == "" {
			return domain.ValidationError{Field: "name", Reason: "sub-item name is required"}
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateSubItem(item)
			if err != nil {
				return err
			}
			trade, err := s.recalcTradeTx(tx, created.TradeID)
			if err != nil {
				return err
			}
			_, err = s.recalcEstimateTx(tx, trade.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return created, err
}

// UpdateSubItem mutates a sub-item and re-rolls the owning trade and estimate.
func (s *Service) UpdateSubItem(ctx context.Context, id string, mutator func(*SubItem) error) (SubItem, error) {
	var updated SubItem
	err := s.instrument(ctx, "update_sub_item", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateSubItem(id, mutator)
			if err != nil {
				return err
			}
			trade, err := s.recalcTradeTx(tx, updated.TradeID)
			if err != nil {
				return err
			}
			_, err = s.recalcEstimateTx(tx, trade.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
	return updated, err
}

// DeleteSubItem removes a sub-item and re-rolls the owning trade and estimate.
// When the last sub-item goes away the trade's direct cost fields keep the
// final derived sums rather than resetting.
func (s *Service) DeleteSubItem(ctx context.Context, id string) error {
	return s.instrument(ctx, "delete_sub_item", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			item, ok := tx.FindSubItem(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntitySubItem, ID: id}
			}
			if err := tx.DeleteSubItem(id); err != nil {
				return err
			}
			trade, err := s.recalcTradeTx(tx, item.TradeID)
			if err != nil {
				return err
			}
			_, err = s.recalcEstimateTx(tx, trade.EstimateID)
			return err
		})
		s.logWarnings(res)
		return err
	})
}

// SubItemsForTrade lists a trade's sub-items in creation order.
func (s *Service) SubItemsForTrade(ctx context.Context, tradeID string) ([]SubItem, error) {
	var items []SubItem
	err := s.instrument(ctx, "sub_items_for_trade", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			if _, ok := view.FindTrade(tradeID); !ok {
				return domain.NotFoundError{Entity: domain.EntityTrade, ID: tradeID}
			}
			items = view.SubItemsByTrade(tradeID)
			return nil
		})
	})
	return items, err
}
