package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox publish statuses for DocumentChangeRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// DocumentChangeRecord is a transactional-outbox row for the change feed.
// It is written inside the caller's DB transaction; a background dispatcher
// publishes it to Pub/Sub after commit so queue viewers re-fetch.
type DocumentChangeRecord struct {
	ID            int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId    string              `gorm:"size:64;not null;index" json:"business_id"`
	OccurredAt    time.Time           `gorm:"index;not null" json:"occurred_at"`
	ReferenceId   int                 `json:"reference_id"`
	ReferenceType ChangeReferenceType `gorm:"type:enum('DOC','IV','PM','DN','DE','PA')" json:"reference_type"`
	Action        ChangeAction        `gorm:"type:enum('C','U','D')" json:"action"`
	OldObj        []byte              `gorm:"type:blob" json:"old_obj"`
	NewObj        []byte              `gorm:"type:blob" json:"new_obj"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordDocumentChange writes a change-feed row inside the caller's transaction.
// It does NOT publish to Pub/Sub; the dispatcher does that after commit.
func RecordDocumentChange(ctx context.Context, tx *gorm.DB, businessId string, refId int, refType ChangeReferenceType, action ChangeAction, oldObj interface{}, newObj interface{}) error {

	var oldInByte, newInByte []byte
	var err error

	if action == ChangeActionCreate || action == ChangeActionUpdate {
		newInByte, err = json.Marshal(newObj)
		if err != nil {
			return err
		}
	}
	if action == ChangeActionUpdate || action == ChangeActionDelete {
		oldInByte, err = json.Marshal(oldObj)
		if err != nil {
			return err
		}
	}

	record := DocumentChangeRecord{
		BusinessId:    businessId,
		OccurredAt:    time.Now().UTC(),
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        action,
		OldObj:        oldInByte,
		NewObj:        newInByte,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToChangeMessage(record DocumentChangeRecord) config.DocumentChangeMessage {
	return config.DocumentChangeMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		OccurredAt:    record.OccurredAt,
		ReferenceId:   record.ReferenceId,
		ReferenceType: string(record.ReferenceType),
		Action:        string(record.Action),
		OldObj:        record.OldObj,
		NewObj:        record.NewObj,
		CorrelationId: record.CorrelationId,
	}
}
