package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// priceAlertTolerance is in currency units: a change must exceed it to alert.
var priceAlertTolerance = decimal.NewFromFloat(0.01)

// priceChange decides whether a price move warrants an alert and computes the
// percent change. The percent is only defined for a positive old price.
func priceChange(oldPrice, newPrice decimal.Decimal) (alert bool, changePct *decimal.Decimal) {
	diff := newPrice.Sub(oldPrice)
	if diff.Abs().LessThanOrEqual(priceAlertTolerance) {
		return false, nil
	}
	if oldPrice.IsPositive() {
		pct := diff.Div(oldPrice).Mul(decimal.NewFromInt(100))
		return true, &pct
	}
	return true, nil
}

// normalizeItemName is the catalog key normalization.
func normalizeItemName(name string) string {
	return strings.TrimSpace(name)
}

// TrackLineItemPrices records a price observation for every qualifying line
// item of an approved document: resolve-or-create the SupplierItem, append a
// SupplierItemPrice, update current_price/last_price_date, and raise a
// PriceAlert when the price moved beyond tolerance. The first observation of
// an item never alerts.
//
// Per-item failures are logged and skipped so one bad row cannot block the
// reviewer or the remaining items.
func TrackLineItemPrices(tx *gorm.DB, ctx context.Context, businessId string, supplierId int, documentId int, invoiceId *int, documentDate time.Time, items []models.CandidateLineItem) {
	logger := config.GetLogger()

	for _, item := range items {
		name := normalizeItemName(item.Description)
		if name == "" || !item.UnitPrice.IsPositive() {
			continue
		}
		if err := trackOneItem(tx, ctx, businessId, supplierId, documentId, invoiceId, documentDate, name, item); err != nil {
			config.LogError(logger, "Workflow", "TrackLineItemPrices", "price tracking skipped for item", name, err)
		}
	}
}

func trackOneItem(tx *gorm.DB, ctx context.Context, businessId string, supplierId int, documentId int, invoiceId *int, documentDate time.Time, name string, line models.CandidateLineItem) error {

	newPrice := line.UnitPrice

	item, err := models.GetSupplierItemByName(tx, ctx, businessId, supplierId, name)
	firstObservation := false
	if err != nil {
		if err != utils.ErrorRecordNotFound {
			return err
		}
		firstObservation = true
		item = &models.SupplierItem{
			BusinessId:   businessId,
			SupplierId:   supplierId,
			Name:         name,
			CurrentPrice: newPrice,
		}
		if err := tx.WithContext(ctx).Create(item).Error; err != nil {
			return err
		}
	}

	// read before mutating
	oldPrice := item.CurrentPrice

	var quantity *decimal.Decimal
	if !line.Quantity.IsZero() {
		q := line.Quantity
		quantity = &q
	}
	pricePoint := models.SupplierItemPrice{
		BusinessId:     businessId,
		SupplierItemId: item.ID,
		Price:          newPrice,
		Quantity:       quantity,
		InvoiceId:      invoiceId,
		DocumentId:     &documentId,
		DocumentDate:   documentDate,
	}
	if err := tx.WithContext(ctx).Create(&pricePoint).Error; err != nil {
		return err
	}

	if err := tx.WithContext(ctx).Model(&models.SupplierItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"current_price":   newPrice,
			"last_price_date": documentDate,
		}).Error; err != nil {
		return err
	}

	if firstObservation {
		return nil
	}

	alert, changePct := priceChange(oldPrice, newPrice)
	if !alert {
		return nil
	}

	priceAlert := models.PriceAlert{
		BusinessId:     businessId,
		SupplierItemId: item.ID,
		OldPrice:       oldPrice,
		NewPrice:       newPrice,
		ChangePct:      changePct,
		DocumentId:     &documentId,
		Status:         models.PriceAlertStatusUnread,
	}
	return tx.WithContext(ctx).Create(&priceAlert).Error
}
