package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SupplierItem is a per-supplier catalog entry keyed by
// (business, supplier, normalized item name). Created lazily on first
// sighting; current_price/last_price_date updated on every sighting.
type SupplierItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;uniqueIndex:unq_supplier_item,priority:1" json:"business_id"`
	SupplierId    int             `gorm:"not null;uniqueIndex:unq_supplier_item,priority:2" json:"supplier_id"`
	Name          string          `gorm:"size:500;not null;uniqueIndex:unq_supplier_item,priority:3" json:"name"`
	CurrentPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_price"`
	LastPriceDate *time.Time      `json:"last_price_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i SupplierItem) GetId() int {
	return i.ID
}

// SupplierItemPrice is an append-only price point. Never mutated or deleted.
type SupplierItemPrice struct {
	ID             int              `gorm:"primary_key" json:"id"`
	BusinessId     string           `gorm:"size:64;not null;index" json:"business_id"`
	SupplierItemId int              `gorm:"not null;index" json:"supplier_item_id"`
	Price          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"price"`
	Quantity       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	InvoiceId      *int             `json:"invoice_id"`
	DocumentId     *int             `json:"document_id"`
	DocumentDate   time.Time        `gorm:"not null;index" json:"document_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type PriceAlert struct {
	ID             int              `gorm:"primary_key" json:"id"`
	BusinessId     string           `gorm:"size:64;not null;index" json:"business_id"`
	SupplierItemId int              `gorm:"not null;index" json:"supplier_item_id"`
	OldPrice       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"old_price"`
	NewPrice       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"new_price"`
	ChangePct      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"change_pct"`
	DocumentId     *int             `json:"document_id"`
	Status         PriceAlertStatus `gorm:"type:enum('unread','read','dismissed');not null;default:'unread';index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a PriceAlert) GetId() int {
	return a.ID
}

// GetSupplierItemByName resolves a catalog entry by exact (already normalized)
// name inside the caller's transaction.
func GetSupplierItemByName(tx *gorm.DB, ctx context.Context, businessId string, supplierId int, name string) (*SupplierItem, error) {
	var item SupplierItem
	err := tx.WithContext(ctx).
		Where("business_id = ? AND supplier_id = ? AND name = ?", businessId, supplierId, name).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListPriceAlerts returns alerts filtered by status (unread|read|dismissed|all).
func ListPriceAlerts(ctx context.Context, businessId string, statusFilter string) ([]*PriceAlert, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)

	if statusFilter != "" && statusFilter != "all" {
		status, ok := ParsePriceAlertStatus(statusFilter)
		if !ok {
			return nil, errors.New("invalid status filter")
		}
		dbCtx = dbCtx.Where("status = ?", status)
	}

	var alerts []*PriceAlert
	if err := dbCtx.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkPriceAlert moves an alert to read or dismissed.
func MarkPriceAlert(ctx context.Context, businessId string, id int, status PriceAlertStatus) (*PriceAlert, error) {
	if status != PriceAlertStatusRead && status != PriceAlertStatusDismissed {
		return nil, errors.New("invalid alert status")
	}

	alert, err := utils.FetchModel[PriceAlert](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(alert).Update("status", status).Error; err != nil {
		return nil, err
	}
	alert.Status = status
	return alert, nil
}

// GetItemPriceHistory returns the append-only price points of one item, oldest first.
func GetItemPriceHistory(ctx context.Context, businessId string, itemId int) ([]*SupplierItemPrice, error) {
	if err := utils.ValidateResourceId[SupplierItem](ctx, businessId, itemId); err != nil {
		return nil, errors.New("supplier item not found")
	}

	db := config.GetDB()
	var prices []*SupplierItemPrice
	err := db.WithContext(ctx).
		Where("business_id = ? AND supplier_item_id = ?", businessId, itemId).
		Order("document_date ASC, id ASC").
		Find(&prices).Error
	if err != nil {
		return nil, err
	}
	return prices, nil
}
