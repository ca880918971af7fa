package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"gorm.io/gorm"
)

// claimTimeout is how long a reviewer's claim on a document stays exclusive.
// After this a stale claim may be taken over by another reviewer.
const claimTimeout = 15 * time.Minute

// statusDeleted is a transition target only; deleted documents are removed,
// never stored with this status.
const statusDeleted models.DocumentStatus = "deleted"

// canTransition is the full transition table of the document lifecycle.
// Approved and rejected are terminal.
func canTransition(from, to models.DocumentStatus) bool {
	switch from {
	case models.DocumentStatusPending:
		return to == models.DocumentStatusReviewing || to == statusDeleted
	case models.DocumentStatusReviewing:
		return to == models.DocumentStatusPending ||
			to == models.DocumentStatusApproved ||
			to == models.DocumentStatusRejected ||
			to == statusDeleted
	default:
		return false
	}
}

// SelectDocumentForReview claims a pending document for the calling reviewer.
// The claim is a compare-and-swap UPDATE on (status, lock_version), so two
// reviewers can never both hold the same document; a claim older than
// claimTimeout is treated as abandoned and may be taken over.
// The claimed document is returned to the caller; selection state is
// per-request, never ambient.
func SelectDocumentForReview(ctx context.Context, documentId int) (*models.ScannedDocument, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	username, _ := utils.GetUsernameFromContext(ctx)

	db := config.GetDB()
	document, err := models.GetScannedDocument(ctx, businessId, documentId)
	if err != nil {
		return nil, err
	}
	if document.Status.IsTerminal() {
		return nil, ErrDocumentTerminal
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-claimTimeout)

	var claimed bool
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ScannedDocument{}).
			Where("id = ? AND business_id = ? AND lock_version = ?", documentId, businessId, document.LockVersion).
			Where("status = ? OR (status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?)",
				models.DocumentStatusPending, models.DocumentStatusReviewing, staleBefore).
			Updates(map[string]interface{}{
				"status":       models.DocumentStatusReviewing,
				"reviewing_by": username,
				"claimed_at":   now,
				"lock_version": gorm.Expr("lock_version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		claimed = true
		return models.RecordDocumentChange(ctx, tx, businessId, documentId,
			models.ChangeReferenceTypeDocument, models.ChangeActionUpdate, document, nil)
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDocumentNotPending
	}

	return models.GetScannedDocument(ctx, businessId, documentId)
}

// SkipDocument releases a claimed document back to pending with no side
// effects. The write is confirmed before returning.
func SkipDocument(ctx context.Context, documentId int) (*models.ScannedDocument, error) {
	return releaseOrFinalize(ctx, documentId, models.DocumentStatusPending, "")
}

// RejectDocument moves a claimed document to the terminal rejected state,
// recording reviewer, timestamp and the optional free-text reason.
func RejectDocument(ctx context.Context, documentId int, reason string) (*models.ScannedDocument, error) {
	return releaseOrFinalize(ctx, documentId, models.DocumentStatusRejected, reason)
}

func releaseOrFinalize(ctx context.Context, documentId int, target models.DocumentStatus, reason string) (*models.ScannedDocument, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	username, _ := utils.GetUsernameFromContext(ctx)

	document, err := models.GetScannedDocument(ctx, businessId, documentId)
	if err != nil {
		return nil, err
	}
	if document.Status.IsTerminal() {
		return nil, ErrDocumentTerminal
	}
	if !canTransition(document.Status, target) {
		return nil, ErrDocumentNotReviewing
	}

	updates := map[string]interface{}{
		"status":       target,
		"reviewing_by": "",
		"claimed_at":   nil,
		"lock_version": gorm.Expr("lock_version + 1"),
	}
	if target == models.DocumentStatusRejected {
		now := time.Now().UTC()
		updates["reviewed_by"] = username
		updates["reviewed_at"] = now
		updates["rejection_reason"] = reason
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ScannedDocument{}).
			Where("id = ? AND business_id = ? AND status = ? AND lock_version = ?",
				documentId, businessId, models.DocumentStatusReviewing, document.LockVersion).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDocumentNotReviewing
		}
		return models.RecordDocumentChange(ctx, tx, businessId, documentId,
			models.ChangeReferenceTypeDocument, models.ChangeActionUpdate, document, nil)
	})
	if err != nil {
		return nil, err
	}

	return models.GetScannedDocument(ctx, businessId, documentId)
}

// DeleteDocument hard-deletes a non-terminal document. Ledger records the
// document may have produced are left untouched.
func DeleteDocument(ctx context.Context, documentId int) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}

	document, err := models.GetScannedDocument(ctx, businessId, documentId)
	if err != nil {
		return err
	}
	if !canTransition(document.Status, statusDeleted) {
		return ErrDocumentTerminal
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND business_id = ? AND status IN ?",
			documentId, businessId,
			[]models.DocumentStatus{models.DocumentStatusPending, models.DocumentStatusReviewing}).
			Delete(&models.ScannedDocument{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDocumentTerminal
		}
		return models.RecordDocumentChange(ctx, tx, businessId, documentId,
			models.ChangeReferenceTypeDocument, models.ChangeActionDelete, document, nil)
	})
	if err != nil {
		return err
	}

	// best-effort removal of the stored scan; the queue row is already gone
	if key := utils.ObjectKeyFromAccessURL(document.ImageUrl); key != "" {
		if err := utils.DeleteFileFromGCS(ctx, key); err != nil {
			config.LogError(config.GetLogger(), moduleName, "DeleteDocument", "DeleteFileFromGCS", key, err)
		}
	}
	return nil
}

// ListDocuments is the queue view: documents filtered by
// pending|reviewing|approved|rejected|all.
func ListDocuments(ctx context.Context, statusFilter string) ([]*models.ScannedDocument, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return models.ListScannedDocuments(ctx, businessId, statusFilter)
}
