package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// beginApproval claims the per-document approval key. Returns skip=true when
// a previous approval already SUCCEEDED (safe to treat as done). A fresh
// IN_PROGRESS claim by someone else yields ErrApprovalInProgress; a stale or
// FAILED claim is taken over so the reviewer can retry.
func beginApproval(db *gorm.DB, businessId string, documentId int, claimedBy string) (skip bool, err error) {
	key := models.ApprovalKey{
		BusinessId: businessId,
		DocumentId: documentId,
		Status:     models.ApprovalKeyStatusInProgress,
		ClaimedBy:  claimedBy,
	}
	if err := db.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.ApprovalKey
	if err := db.Where("business_id = ? AND document_id = ?", businessId, documentId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.ApprovalKeyStatusSucceeded:
		return true, nil
	case models.ApprovalKeyStatusInProgress:
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrApprovalInProgress
		}
		return false, reclaimApproval(db, existing.ID, claimedBy)
	default:
		return false, reclaimApproval(db, existing.ID, claimedBy)
	}
}

func reclaimApproval(db *gorm.DB, keyId int, claimedBy string) error {
	return db.Model(&models.ApprovalKey{}).
		Where("id = ?", keyId).
		Updates(map[string]interface{}{
			"status":     models.ApprovalKeyStatusInProgress,
			"claimed_by": claimedBy,
		}).Error
}

func markApprovalSucceeded(db *gorm.DB, businessId string, documentId int) error {
	return db.Model(&models.ApprovalKey{}).
		Where("business_id = ? AND document_id = ?", businessId, documentId).
		Update("status", models.ApprovalKeyStatusSucceeded).Error
}

func markApprovalFailed(db *gorm.DB, businessId string, documentId int) error {
	return db.Model(&models.ApprovalKey{}).
		Where("business_id = ? AND document_id = ?", businessId, documentId).
		Update("status", models.ApprovalKeyStatusFailed).Error
}
