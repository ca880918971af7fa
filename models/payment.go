package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment owns an ordered set of PaymentSplit rows. Invariant: the sum of
// split amounts equals TotalAmount within currency rounding.
type Payment struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"size:64;not null;index" json:"business_id" binding:"required"`
	InvoiceId   *int            `gorm:"index" json:"invoice_id"`
	SupplierId  int             `gorm:"index" json:"supplier_id"`
	PaymentDate time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`

	Splits []PaymentSplit `json:"splits"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentSplit is one disbursement leg. InstallmentNumber is contiguous
// within 1..InstallmentsCount for a logical installment plan.
type PaymentSplit struct {
	ID                int               `gorm:"primary_key" json:"id"`
	PaymentId         int               `gorm:"index;not null" json:"payment_id"`
	Method            PaymentMethodType `gorm:"type:enum('cash','check','bank_transfer','credit_card','other');not null" json:"method"`
	Amount            decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"amount"`
	InstallmentsCount int               `gorm:"not null;default:1" json:"installments_count"`
	InstallmentNumber int               `gorm:"not null;default:1" json:"installment_number"`
	CreditCardId      *int              `json:"credit_card_id"`
	DueDate           time.Time         `gorm:"not null" json:"due_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p Payment) GetId() int {
	return p.ID
}

func (p *Payment) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(p).Error
}

func GetPayment(ctx context.Context, businessId string, id int) (*Payment, error) {
	return utils.FetchModel[Payment](ctx, businessId, id, "Splits")
}
