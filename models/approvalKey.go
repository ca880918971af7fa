package models

import (
	"time"
)

// ApprovalKey statuses.
const (
	ApprovalKeyStatusInProgress = "IN_PROGRESS"
	ApprovalKeyStatusSucceeded  = "SUCCEEDED"
	ApprovalKeyStatusFailed     = "FAILED"
)

// ApprovalKey makes document approval idempotent: the unique
// (business_id, document_id) row is claimed before materialization starts,
// so a retry after a partial failure can never create duplicate ledger rows.
type ApprovalKey struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;uniqueIndex:unq_approval_key,priority:1" json:"business_id"`
	DocumentId int    `gorm:"not null;uniqueIndex:unq_approval_key,priority:2" json:"document_id"`
	Status     string `gorm:"size:20;not null;default:'IN_PROGRESS'" json:"status"`
	ClaimedBy  string `gorm:"size:255" json:"claimed_by"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
