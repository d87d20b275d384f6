package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costcore/internal/blob"
	"costcore/pkg/domain"
)

// ErrNoDocumentStore is returned when quote document operations run without a
// configured blob store.
var ErrNoDocumentStore = errors.New("no document store configured")

// VendorQuote carries the priced response a subcontractor or supplier sent
// back for one trade.
type VendorQuote struct {
	Vendor            string
	Reference         string
	LaborCost         decimal.Decimal
	MaterialCost      decimal.Decimal
	SubcontractorCost decimal.Decimal
}

// ApplyVendorQuote records a vendor's quoted costs as a sub-item under the
// trade, so the quote flows through the standard rollup pipeline and the
// estimate totals pick it up in the same transaction.
func (s *Service) ApplyVendorQuote(ctx context.Context, tradeID string, quote VendorQuote) (SubItem, error) {
	var created SubItem
	err := s.instrument(ctx, "apply_vendor_quote", func(ctx context.Context) error {
		if strings.TrimSpace(quote.Vendor) == "" {
			return domain.ValidationError{Field: "vendor", Reason: "vendor name is required"}
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		name := quote.Vendor
		if quote.Reference != "" {
			name = fmt.Sprintf("%s (%s)", quote.Vendor, quote.Reference)
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateSubItem(SubItem{
				TradeID:           tradeID,
				Name:              name,
				LaborCost:         quote.LaborCost,
				MaterialCost:      quote.MaterialCost,
				SubcontractorCost: quote.SubcontractorCost,
			})
			if err != nil {
				return err
			}
			trade, err := s.recalcTradeTx(tx, tradeID)
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

// AttachQuoteDocument uploads a quote document for a trade and stores the
// resulting URL on the trade record. Keys are namespaced per trade and made
// unique per upload.
func (s *Service) AttachQuoteDocument(ctx context.Context, tradeID, filename, contentType string, r io.Reader) (Trade, error) {
	var updated Trade
	err := s.instrument(ctx, "attach_quote_document", func(ctx context.Context) error {
		if s.docs == nil {
			return ErrNoDocumentStore
		}
		if err := s.requireWriteIdentity(ctx); err != nil {
			return err
		}
		if err := s.router.View(ctx, func(view domain.TransactionView) error {
			if _, ok := view.FindTrade(tradeID); !ok {
				return domain.NotFoundError{Entity: domain.EntityTrade, ID: tradeID}
			}
			return nil
		}); err != nil {
			return err
		}
		name := path.Base(filename)
		if name == "." || name == "/" || name == "" {
			name = "quote"
		}
		key := fmt.Sprintf("quotes/%s/%s-%s", tradeID, uuid.NewString(), name)
		info, err := s.docs.Put(ctx, key, r, blob.PutOptions{ContentType: contentType})
		if err != nil {
			return fmt.Errorf("store quote document: %w", err)
		}
		url := info.URL
		if url == "" {
			if presigned, perr := s.docs.PresignURL(ctx, key, blob.SignedURLOptions{}); perr == nil {
				url = presigned
			} else {
				url = fmt.Sprintf("blob://%s/%s", s.docs.Driver(), key)
			}
		}
		res, err := s.router.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateTrade(tradeID, func(t *Trade) error {
				t.QuoteDocumentURL = &url
				return nil
			})
			return err
		})
		s.logWarnings(res)
		return err
	})
	return updated, err
}

// QuoteDocuments lists the stored documents attached to a trade.
func (s *Service) QuoteDocuments(ctx context.Context, tradeID string) ([]blob.Info, error) {
	var infos []blob.Info
	err := s.instrument(ctx, "quote_documents", func(ctx context.Context) error {
		if s.docs == nil {
			return ErrNoDocumentStore
		}
		var err error
		infos, err = s.docs.List(ctx, fmt.Sprintf("quotes/%s/", tradeID))
		return err
	})
	return infos, err
}
