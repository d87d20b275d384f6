package core

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"costcore/pkg/domain"
)

// SnapshotTemplateTrades strips identity and ordering metadata from a trade
// set, producing the immutable entries stored inside a template.
func SnapshotTemplateTrades(trades []Trade) []TemplateTrade {
	out := make([]TemplateTrade, 0, len(trades))
	for _, t := range trades {
		entry := TemplateTrade{
			Name:              t.Name,
			CategoryKey:       t.CategoryKey,
			CategoryGroup:     t.CategoryGroup,
			Quantity:          t.Quantity,
			Unit:              t.Unit,
			LaborCost:         t.LaborCost,
			MaterialCost:      t.MaterialCost,
			SubcontractorCost: t.SubcontractorCost,
			TotalCost:         t.TotalCost,
			IsSubcontracted:   t.IsSubcontracted,
			WasteFactor:       t.WasteFactor,
		}
		if t.MarkupPercent != nil {
			pct := *t.MarkupPercent
			entry.MarkupPercent = &pct
		}
		out = append(out, entry)
	}
	return out
}

// CreateTemplate snapshots an estimate's current trade set into a reusable
// template carrying the estimate's pricing defaults.
func (s *Service) CreateTemplate(ctx context.Context, name, estimateID string) (Template, error) {
	var created Template
	err := s.instrument(ctx, "create_template", func(ctx context.Context) error {
		if strings.TrimSpace(name) == "" {
			return domain.ValidationError{Field: "name", Reason: "template name is required"}
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			estimate, ok := tx.FindEstimate(estimateID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEstimate, ID: estimateID}
			}
			var err error
			created, err = tx.CreateTemplate(Template{
				Name:                      name,
				Trades:                    SnapshotTemplateTrades(tx.TradesByEstimate(estimateID)),
				DefaultMarkupPercent:      estimate.DefaultMarkupPercent,
				DefaultContingencyPercent: estimate.DefaultContingencyPercent,
			})
			return err
		})
		s.logWarnings(res)
		return err
	})
	return created, err
}

// GetTemplate returns a template by id from the active backend.
func (s *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	var template Template
	err := s.instrument(ctx, "get_template", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			found, ok := view.FindTemplate(id)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTemplate, ID: id}
			}
			template = found
			return nil
		})
	})
	return template, err
}

// ListTemplates returns all templates from the active backend.
func (s *Service) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	err := s.instrument(ctx, "list_templates", func(ctx context.Context) error {
		return s.router.View(ctx, func(view domain.TransactionView) error {
			templates = view.ListTemplates()
			return nil
		})
	})
	return templates, err
}

// DeleteTemplate removes a template. Applied trades are unaffected.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.instrument(ctx, "delete_template", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteTemplate(id)
		})
		s.logWarnings(res)
		return err
	})
}

// ApplyTemplate instantiates every template trade into the target estimate
// with fresh identities, resolving each trade's markup from the snapshot
// entry, then the template default, then the global default. The target
// estimate is recomputed once at the end, the template's usage counter is
// bumped and the owning project linked for provenance.
func (s *Service) ApplyTemplate(ctx context.Context, templateID, estimateID string) ([]Trade, error) {
	var applied []Trade
	err := s.instrument(ctx, "apply_template", func(ctx context.Context) error {
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			template, ok := tx.FindTemplate(templateID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityTemplate, ID: templateID}
			}
			estimate, ok := tx.FindEstimate(estimateID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityEstimate, ID: estimateID}
			}
			for _, entry := range template.Trades {
				markup := resolveTemplateMarkup(entry, template)
				group := entry.CategoryGroup
				if group == "" {
					group = GroupForCategoryKey(entry.CategoryKey)
				}
				trade := domain.RollupTrade(Trade{
					EstimateID:        estimateID,
					Name:              entry.Name,
					CategoryKey:       entry.CategoryKey,
					CategoryGroup:     group,
					Quantity:          entry.Quantity,
					Unit:              entry.Unit,
					LaborCost:         entry.LaborCost,
					MaterialCost:      entry.MaterialCost,
					SubcontractorCost: entry.SubcontractorCost,
					MarkupPercent:     &markup,
					IsSubcontracted:   entry.IsSubcontracted,
					WasteFactor:       entry.WasteFactor,
				}, nil)
				created, err := tx.CreateTrade(trade)
				if err != nil {
					return err
				}
				applied = append(applied, created)
			}
			if _, err := s.recalcEstimateTx(tx, estimateID); err != nil {
				return err
			}
			_, err := tx.UpdateTemplate(templateID, func(t *Template) error {
				t.UsageCount++
				if !slices.Contains(t.LinkedProjectIDs, estimate.ProjectID) {
					t.LinkedProjectIDs = append(t.LinkedProjectIDs, estimate.ProjectID)
				}
				return nil
			})
			return err
		})
		s.logWarnings(res)
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// resolveTemplateMarkup resolves the markup for an instantiated template
// trade: snapshot entry override, else template default, else global default.
func resolveTemplateMarkup(entry TemplateTrade, template Template) decimal.Decimal {
	if entry.MarkupPercent != nil {
		return domain.NormalizeMarkupPercent(*entry.MarkupPercent)
	}
	if !template.DefaultMarkupPercent.IsZero() {
		return domain.NormalizeMarkupPercent(template.DefaultMarkupPercent)
	}
	return domain.GlobalDefaultMarkupPercent()
}
