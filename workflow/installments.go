package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"github.com/shopspring/decimal"
)

// CardLookup resolves a tracked credit card by id. The splitter takes it as a
// function so the arithmetic stays testable without a DB.
type CardLookup func(cardId int) (*models.CreditCard, error)

// BuildPaymentSplits turns the declared payment-method entries of a document
// into PaymentSplit rows (PaymentId left unset for the caller to fill).
//
// Per entry: explicit overrides are emitted verbatim, one split per override,
// numbered 1..len(overrides). Otherwise a single split is emitted with the
// entry's installment count and a due date of refDate, or the card's next
// billing date when the method is a tracked credit card.
//
// The returned total is the exact sum of the emitted split amounts, so the
// sum-of-splits invariant holds by construction. When method entries are
// present their sum wins over the document's extracted total.
func BuildPaymentSplits(refDate time.Time, entries []models.PaymentMethodEntry, lookupCard CardLookup) ([]models.PaymentSplit, decimal.Decimal, error) {

	var splits []models.PaymentSplit
	total := decimal.Zero

	for _, entry := range entries {
		if len(entry.Overrides) > 0 {
			count := len(entry.Overrides)
			for i, override := range entry.Overrides {
				splits = append(splits, models.PaymentSplit{
					Method:            entry.Method,
					Amount:            override.Amount,
					InstallmentsCount: count,
					InstallmentNumber: i + 1,
					CreditCardId:      cardIdOrNil(entry.CreditCardId),
					DueDate:           override.DueDate,
				})
				total = total.Add(override.Amount)
			}
			continue
		}

		dueDate := refDate
		if entry.Method == models.PaymentMethodCreditCard && entry.CreditCardId > 0 {
			if lookupCard == nil {
				return nil, decimal.Zero, errors.New("credit card lookup is required")
			}
			card, err := lookupCard(entry.CreditCardId)
			if err != nil {
				return nil, decimal.Zero, err
			}
			dueDate = NextBillingDate(refDate, card.BillingDay)
		}

		count := entry.Installments
		if count < 1 {
			count = 1
		}
		splits = append(splits, models.PaymentSplit{
			Method:            entry.Method,
			Amount:            entry.Amount,
			InstallmentsCount: count,
			InstallmentNumber: 1,
			CreditCardId:      cardIdOrNil(entry.CreditCardId),
			DueDate:           dueDate,
		})
		total = total.Add(entry.Amount)
	}

	return splits, total, nil
}

func cardIdOrNil(cardId int) *int {
	if cardId <= 0 {
		return nil
	}
	return &cardId
}
