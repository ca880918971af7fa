package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DailyEntry is one operational day's record, unique per (business, date).
// A duplicate-date write is a conflict, never an overwrite.
type DailyEntry struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;uniqueIndex:unq_daily_entry,priority:1" json:"business_id"`
	EntryDate  time.Time `gorm:"type:date;not null;uniqueIndex:unq_daily_entry,priority:2" json:"entry_date"`

	IncomeLines    []DailyIncomeLine    `json:"income_lines"`
	ReceiptLines   []DailyReceiptLine   `json:"receipt_lines"`
	ParameterLines []DailyParameterLine `json:"parameter_lines"`
	ProductUsages  []DailyProductUsage  `json:"product_usages"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e DailyEntry) GetId() int {
	return e.ID
}

type DailyIncomeLine struct {
	ID           int             `gorm:"primary_key" json:"id"`
	DailyEntryId int             `gorm:"not null;index" json:"daily_entry_id"`
	Source       string          `gorm:"size:255;not null" json:"source"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type DailyReceiptLine struct {
	ID           int             `gorm:"primary_key" json:"id"`
	DailyEntryId int             `gorm:"not null;index" json:"daily_entry_id"`
	ReceiptType  string          `gorm:"size:255;not null" json:"receipt_type"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type DailyParameterLine struct {
	ID           int             `gorm:"primary_key" json:"id"`
	DailyEntryId int             `gorm:"not null;index" json:"daily_entry_id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Value        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"value"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type DailyProductUsage struct {
	ID           int             `gorm:"primary_key" json:"id"`
	DailyEntryId int             `gorm:"not null;index" json:"daily_entry_id"`
	ProductId    int             `gorm:"not null;index" json:"product_id"`
	ClosingStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"closing_stock"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ManagedProduct tracks a stock-managed product; CurrentStock is set to the
// reported closing value on daily-entry approval.
type ManagedProduct struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;not null;index" json:"business_id"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Unit         string          `gorm:"size:64" json:"unit"`
	CurrentStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p ManagedProduct) GetId() int {
	return p.ID
}

func (e *DailyEntry) Store(tx *gorm.DB, ctx context.Context) error {
	return tx.WithContext(ctx).Create(e).Error
}

func GetDailyEntry(ctx context.Context, businessId string, id int) (*DailyEntry, error) {
	return utils.FetchModel[DailyEntry](ctx, businessId, id,
		"IncomeLines", "ReceiptLines", "ParameterLines", "ProductUsages")
}
