package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is a business-owned ledger record. Supplier/date/amount fields are
// immutable once created; status may still change from other flows.
type Invoice struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;index" json:"business_id" binding:"required"`
	SupplierId     int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	InvoiceNumber  string          `gorm:"size:255" json:"invoice_number"`
	InvoiceDate    time.Time       `gorm:"not null;index" json:"invoice_date" binding:"required"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	VatAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status         InvoiceStatus   `gorm:"type:enum('pending','paid','needs_review');not null;default:'pending'" json:"status"`
	InvoiceType    InvoiceType     `gorm:"type:enum('goods','current','employees');not null;default:'goods'" json:"invoice_type"`
	IsConsolidated bool            `gorm:"not null;default:false" json:"is_consolidated"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i Invoice) GetId() int {
	return i.ID
}

func (i *Invoice) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(i).Error
}

func GetInvoice(ctx context.Context, businessId string, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, businessId, id)
}
