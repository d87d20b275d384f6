package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"costcore/internal/blob"
	"costcore/pkg/domain"
)

func TestApplyVendorQuoteFlowsThroughRollup(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	_, estimate := seedProject(t, svc)
	trade, err := svc.CreateTrade(ctx, Trade{EstimateID: estimate.ID, Name: "HVAC", CategoryKey: "hvac"})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}

	item, err := svc.ApplyVendorQuote(ctx, trade.ID, VendorQuote{
		Vendor:            "CoolAir Mechanical",
		Reference:         "Q-2481",
		SubcontractorCost: dec("5400"),
	})
	if err != nil {
		t.Fatalf("apply quote: %v", err)
	}
	if item.Name != "CoolAir Mechanical (Q-2481)" {
		t.Fatalf("quote sub-item name = %q", item.Name)
	}

	got, err := svc.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if !got.SubcontractorCost.Equal(dec("5400")) || !got.TotalCost.Equal(dec("5400")) {
		t.Fatalf("quoted cost not rolled up: %+v", got)
	}
	totals, err := svc.GetEstimate(ctx, estimate.ID)
	if err != nil {
		t.Fatalf("get estimate: %v", err)
	}
	if !totals.Subtotal.Equal(dec("5400")) {
		t.Fatalf("estimate did not pick up quote: %+v", totals)
	}
}

func TestApplyVendorQuoteRequiresVendor(t *testing.T) {
	svc, _ := newLocalService(t)
	_, err := svc.ApplyVendorQuote(context.Background(), "any", VendorQuote{Vendor: " "})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAttachQuoteDocument(t *testing.T) {
	docs := blob.NewMemory()
	svc, _ := newLocalService(t, WithDocumentStore(docs))
	ctx := context.Background()
	_, estimate := seedProject(t, svc)
	trade, err := svc.CreateTrade(ctx, Trade{EstimateID: estimate.ID, Name: "Roofing"})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}

	updated, err := svc.AttachQuoteDocument(ctx, trade.ID, "bids/acme-roofing.pdf", "application/pdf", strings.NewReader("%PDF-1.7 quote"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if updated.QuoteDocumentURL == nil {
		t.Fatalf("quote document URL not stored")
	}
	url := *updated.QuoteDocumentURL
	if !strings.HasPrefix(url, "blob://memory/quotes/"+trade.ID+"/") || !strings.HasSuffix(url, "-acme-roofing.pdf") {
		t.Fatalf("unexpected document URL %q", url)
	}

	docsList, err := svc.QuoteDocuments(ctx, trade.ID)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docsList) != 1 || docsList[0].ContentType != "application/pdf" {
		t.Fatalf("stored documents: %+v", docsList)
	}
}

func TestAttachQuoteDocumentUnknownTrade(t *testing.T) {
	svc, _ := newLocalService(t, WithDocumentStore(blob.NewMemory()))
	_, err := svc.AttachQuoteDocument(context.Background(), "missing", "quote.pdf", "application/pdf", strings.NewReader("x"))
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) || notFound.Entity != domain.EntityTrade {
		t.Fatalf("expected trade NotFoundError, got %v", err)
	}
}

func TestQuoteOperationsWithoutDocumentStore(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	if _, err := svc.AttachQuoteDocument(ctx, "t1", "quote.pdf", "", strings.NewReader("x")); !errors.Is(err, ErrNoDocumentStore) {
		t.Fatalf("attach without store: %v", err)
	}
	if _, err := svc.QuoteDocuments(ctx, "t1"); !errors.Is(err, ErrNoDocumentStore) {
		t.Fatalf("list without store: %v", err)
	}
}
