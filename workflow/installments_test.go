package workflow

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fixedCardLookup(cards map[int]*models.CreditCard) CardLookup {
	return func(cardId int) (*models.CreditCard, error) {
		card, ok := cards[cardId]
		if !ok {
			return nil, errors.New("credit card not found")
		}
		return card, nil
	}
}

func TestBuildPaymentSplits_SumInvariant(t *testing.T) {
	refDate := date(2024, time.March, 10)
	entries := []models.PaymentMethodEntry{
		{Method: models.PaymentMethodCash, Amount: dec("100.33")},
		{Method: models.PaymentMethodCheck, Amount: dec("49.67")},
		{Method: models.PaymentMethodBankTransfer, Amount: dec("0.01")},
	}

	splits, total, err := BuildPaymentSplits(refDate, entries, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 3 {
		t.Fatalf("expected 3 splits, got %d", len(splits))
	}

	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(total) {
		t.Errorf("sum of splits %s != total %s", sum, total)
	}
	if !total.Equal(dec("150.01")) {
		t.Errorf("total = %s, want 150.01", total)
	}
}

func TestBuildPaymentSplits_EntriesWinOverExtractedTotal(t *testing.T) {
	// the splitter never sees the document total; its output total is the
	// entry sum, which the materializer uses as the payment total
	refDate := date(2024, time.March, 10)
	entries := []models.PaymentMethodEntry{
		{Method: models.PaymentMethodCash, Amount: dec("80")},
		{Method: models.PaymentMethodCash, Amount: dec("15")},
	}

	_, total, err := BuildPaymentSplits(refDate, entries, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !total.Equal(dec("95")) {
		t.Errorf("total = %s, want 95", total)
	}
}

func TestBuildPaymentSplits_CreditCardUsesBillingCycle(t *testing.T) {
	refDate := date(2024, time.March, 20)
	cards := map[int]*models.CreditCard{
		7: {ID: 7, BillingDay: 15},
	}
	entries := []models.PaymentMethodEntry{
		{Method: models.PaymentMethodCreditCard, Amount: dec("300"), Installments: 3, CreditCardId: 7},
	}

	splits, _, err := BuildPaymentSplits(refDate, entries, fixedCardLookup(cards))
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 1 {
		t.Fatalf("expected 1 split, got %d", len(splits))
	}
	s := splits[0]
	if !s.DueDate.Equal(date(2024, time.April, 15)) {
		t.Errorf("due date = %s, want 2024-04-15", s.DueDate.Format("2006-01-02"))
	}
	if s.InstallmentsCount != 3 || s.InstallmentNumber != 1 {
		t.Errorf("installments = %d/%d, want 1/3", s.InstallmentNumber, s.InstallmentsCount)
	}
	if s.CreditCardId == nil || *s.CreditCardId != 7 {
		t.Errorf("credit card id not carried")
	}
}

func TestBuildPaymentSplits_NonCardDueDateIsRefDate(t *testing.T) {
	refDate := date(2024, time.March, 20)
	entries := []models.PaymentMethodEntry{
		{Method: models.PaymentMethodCheck, Amount: dec("50")},
	}

	splits, _, err := BuildPaymentSplits(refDate, entries, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !splits[0].DueDate.Equal(refDate) {
		t.Errorf("due date = %s, want ref date", splits[0].DueDate.Format("2006-01-02"))
	}
}

func TestBuildPaymentSplits_ExplicitOverridesEmittedVerbatim(t *testing.T) {
	refDate := date(2024, time.March, 10)
	entries := []models.PaymentMethodEntry{
		{
			Method:       models.PaymentMethodCreditCard,
			Amount:       dec("100"), // ignored when overrides are present
			CreditCardId: 7,
			Overrides: []models.InstallmentOverride{
				{Amount: dec("40"), DueDate: date(2024, time.April, 1)},
				{Amount: dec("35"), DueDate: date(2024, time.May, 1)},
				{Amount: dec("25.50"), DueDate: date(2024, time.June, 1)},
			},
		},
	}

	// lookup must not be called for override entries
	splits, total, err := BuildPaymentSplits(refDate, entries, fixedCardLookup(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 3 {
		t.Fatalf("expected 3 splits, got %d", len(splits))
	}
	if !total.Equal(dec("100.50")) {
		t.Errorf("total = %s, want 100.50 (sum of overrides)", total)
	}
	for i, s := range splits {
		if s.InstallmentNumber != i+1 || s.InstallmentsCount != 3 {
			t.Errorf("split %d numbered %d/%d, want %d/3", i, s.InstallmentNumber, s.InstallmentsCount, i+1)
		}
	}
	if !splits[2].Amount.Equal(dec("25.50")) || !splits[2].DueDate.Equal(date(2024, time.June, 1)) {
		t.Errorf("override not emitted verbatim: %s on %s", splits[2].Amount, splits[2].DueDate.Format("2006-01-02"))
	}
}

func TestBuildPaymentSplits_UnknownCardFailsBeforeAnySplit(t *testing.T) {
	refDate := date(2024, time.March, 10)
	entries := []models.PaymentMethodEntry{
		{Method: models.PaymentMethodCreditCard, Amount: dec("10"), CreditCardId: 99},
	}

	_, _, err := BuildPaymentSplits(refDate, entries, fixedCardLookup(nil))
	if err == nil {
		t.Fatal("expected error for unknown card")
	}
}
