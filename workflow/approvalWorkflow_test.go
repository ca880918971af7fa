package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"github.com/shopspring/decimal"
)

func TestBackOutVat(t *testing.T) {
	cases := []struct {
		name     string
		total    string
		rate     string
		subtotal string
		vat      string
	}{
		{"statutory rate", "117.00", "17", "100.00", "17.00"},
		{"round trip exact", "234.00", "17", "200.00", "34.00"},
		{"uneven total", "100.00", "17", "85.47", "14.53"},
		{"alternate rate", "118.00", "18", "100.00", "18.00"},
		{"zero total", "0", "17", "0", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subtotal, vat := backOutVat(dec(tc.total), dec(tc.rate))
			if !subtotal.Equal(dec(tc.subtotal)) {
				t.Errorf("subtotal = %s, want %s", subtotal, tc.subtotal)
			}
			if !vat.Equal(dec(tc.vat)) {
				t.Errorf("vat = %s, want %s", vat, tc.vat)
			}
			if !subtotal.Add(vat).Equal(dec(tc.total)) {
				t.Errorf("subtotal + vat = %s, does not reproduce total %s", subtotal.Add(vat), tc.total)
			}
		})
	}
}

func candidateDoc(docType models.DocumentType, candidate *models.ExtractedCandidate) *models.ScannedDocument {
	return &models.ScannedDocument{
		ID:           1,
		BusinessId:   "biz-1",
		Status:       models.DocumentStatusReviewing,
		DocumentType: docType,
		Candidate:    candidate,
	}
}

func TestNarrowCandidate_Validation(t *testing.T) {
	entryDate := date(2024, time.June, 1)

	cases := []struct {
		name      string
		docType   models.DocumentType
		candidate *models.ExtractedCandidate
		wantErr   bool
	}{
		{"nil candidate", models.DocumentTypeInvoice, nil, true},
		{"invoice missing supplier", models.DocumentTypeInvoice,
			&models.ExtractedCandidate{TotalAmount: dec("100")}, true},
		{"invoice missing amount", models.DocumentTypeInvoice,
			&models.ExtractedCandidate{SupplierName: "Acme"}, true},
		{"invoice valid", models.DocumentTypeInvoice,
			&models.ExtractedCandidate{SupplierName: "Acme", TotalAmount: dec("100")}, false},
		{"credit note valid", models.DocumentTypeCreditNote,
			&models.ExtractedCandidate{SupplierName: "Acme", TotalAmount: dec("100")}, false},
		{"delivery note missing supplier", models.DocumentTypeDeliveryNote,
			&models.ExtractedCandidate{TotalAmount: dec("100")}, true},
		{"payment with methods only", models.DocumentTypePayment,
			&models.ExtractedCandidate{PaymentMethods: []models.PaymentMethodEntry{
				{Method: models.PaymentMethodCash, Amount: dec("50")},
			}}, false},
		{"payment with nothing", models.DocumentTypePayment,
			&models.ExtractedCandidate{}, true},
		{"summary missing supplier", models.DocumentTypeSummary,
			&models.ExtractedCandidate{TotalAmount: dec("117")}, true},
		{"summary valid", models.DocumentTypeSummary,
			&models.ExtractedCandidate{SupplierName: "Acme", TotalAmount: dec("117")}, false},
		{"daily entry missing date", models.DocumentTypeDailyEntry,
			&models.ExtractedCandidate{}, true},
		{"daily entry valid", models.DocumentTypeDailyEntry,
			&models.ExtractedCandidate{EntryDate: &entryDate}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := narrowCandidate(candidateDoc(tc.docType, tc.candidate))
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNarrowCandidate_ExactlyOneCase(t *testing.T) {
	entryDate := date(2024, time.June, 1)
	docs := map[models.DocumentType]*models.ExtractedCandidate{
		models.DocumentTypeInvoice:      {SupplierName: "Acme", TotalAmount: dec("100")},
		models.DocumentTypeCreditNote:   {SupplierName: "Acme", TotalAmount: dec("100")},
		models.DocumentTypeDeliveryNote: {SupplierName: "Acme", TotalAmount: dec("100")},
		models.DocumentTypePayment:      {TotalAmount: dec("100")},
		models.DocumentTypeSummary:      {SupplierName: "Acme", TotalAmount: dec("117")},
		models.DocumentTypeDailyEntry:   {EntryDate: &entryDate},
	}

	for docType, candidate := range docs {
		target, err := narrowCandidate(candidateDoc(docType, candidate))
		if err != nil {
			t.Fatalf("%s: %v", docType, err)
		}
		set := 0
		if target.invoice != nil {
			set++
		}
		if target.deliveryNote != nil {
			set++
		}
		if target.payment != nil {
			set++
		}
		if target.summary != nil {
			set++
		}
		if target.dailyEntry != nil {
			set++
		}
		if set != 1 {
			t.Errorf("%s: %d union members set, want exactly 1", docType, set)
		}
	}
}

func TestNarrowCandidate_InvoiceDefaults(t *testing.T) {
	doc := candidateDoc(models.DocumentTypeInvoice, &models.ExtractedCandidate{
		SupplierName: "Acme",
		TotalAmount:  dec("100"),
		IsPaid:       true,
	})
	target, err := narrowCandidate(doc)
	if err != nil {
		t.Fatal(err)
	}
	if target.invoice.invoiceType != models.InvoiceTypeGoods {
		t.Errorf("invoice type defaulted to %s, want goods", target.invoice.invoiceType)
	}
	if !target.invoice.isPaid {
		t.Error("is_paid not carried")
	}
}

func TestBackOutVat_PerLineMatchesParentShape(t *testing.T) {
	// summary back-out applies the same decomposition per delivery line
	rate := decimal.NewFromInt(17)
	lines := []string{"58.50", "58.50"}
	lineVatSum := decimal.Zero
	for _, l := range lines {
		_, vat := backOutVat(dec(l), rate)
		lineVatSum = lineVatSum.Add(vat)
	}
	_, parentVat := backOutVat(dec("117.00"), rate)
	if !lineVatSum.Equal(parentVat) {
		t.Errorf("per-line vat sum %s != parent vat %s", lineVatSum, parentVat)
	}
}
