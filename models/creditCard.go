package models

import (
	"time"
)

// CreditCard rows are managed by the back-office; the pipeline reads them
// for billing-cycle due dates.
type CreditCard struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index" json:"business_id" binding:"required"`
	Name       string `gorm:"size:255;not null" json:"name" binding:"required"`
	LastDigits string `gorm:"size:8" json:"last_digits"`
	// Day-of-month the card's statement cycle closes on (1-31).
	BillingDay int  `gorm:"not null" json:"billing_day" binding:"required,min=1,max=31"`
	IsActive   bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c CreditCard) GetId() int {
	return c.ID
}
