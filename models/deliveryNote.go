package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DeliveryNote optionally links to a consolidating Invoice (summary flow).
// IsVerified mirrors the parent summary's closed/open flag.
type DeliveryNote struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"size:64;not null;index" json:"business_id" binding:"required"`
	InvoiceId      *int            `gorm:"index" json:"invoice_id"`
	SupplierId     int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	DeliveryNumber string          `gorm:"size:255" json:"delivery_number"`
	DeliveryDate   time.Time       `gorm:"not null;index" json:"delivery_date" binding:"required"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	VatAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	IsVerified     bool            `gorm:"not null;default:false" json:"is_verified"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d DeliveryNote) GetId() int {
	return d.ID
}

func (d *DeliveryNote) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(d).Error
}

func GetDeliveryNote(ctx context.Context, businessId string, id int) (*DeliveryNote, error) {
	return utils.FetchModel[DeliveryNote](ctx, businessId, id)
}
