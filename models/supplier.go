package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Supplier rows are managed by the back-office; the pipeline only resolves
// or creates them by extracted name at approval time.
type Supplier struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index;uniqueIndex:unq_supplier_name,priority:1" json:"business_id" binding:"required"`
	Name       string `gorm:"size:255;not null;uniqueIndex:unq_supplier_name,priority:2" json:"name" binding:"required"`
	TaxId      string `gorm:"size:64" json:"tax_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s Supplier) GetId() int {
	return s.ID
}

// GetOrCreateSupplierByName resolves a supplier by trimmed name inside the
// caller's transaction, creating it when the extraction names an unknown one.
func GetOrCreateSupplierByName(tx *gorm.DB, ctx context.Context, businessId string, name string, taxId string) (*Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("supplier name is required")
	}

	var supplier Supplier
	err := tx.WithContext(ctx).
		Where("business_id = ? AND name = ?", businessId, name).
		First(&supplier).Error
	if err == nil {
		return &supplier, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	supplier = Supplier{
		BusinessId: businessId,
		Name:       name,
		TaxId:      strings.TrimSpace(taxId),
	}
	if err := tx.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}
