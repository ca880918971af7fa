package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
)

type Business struct {
	ID       string          `gorm:"primary_key;size:64" json:"id"`
	Name     string          `gorm:"size:255;not null" json:"name" binding:"required"`
	TaxId    string          `gorm:"size:64" json:"tax_id"`
	// statutory tax-inclusive VAT percent used for summary back-out
	VatRate  decimal.Decimal `gorm:"type:decimal(20,4);default:17" json:"vat_rate"`
	Timezone string          `gorm:"size:100" json:"timezone"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b Business) GetId() string {
	return b.ID
}

// GetBusinessById reads a business, redis first, db on miss.
func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	if businessId == "" {
		return nil, errors.New("business id is required")
	}

	var business Business
	redisKey := "Business:" + businessId
	if err := config.GetRedisObject(ctx, redisKey, &business); err == nil && business.ID != "" {
		return &business, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// caching; failure to cache is not fatal
	_ = config.SetRedisObject(ctx, redisKey, &business, time.Hour)

	return &business, nil
}
