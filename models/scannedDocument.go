package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
)

// ScannedDocument is a captured business paper awaiting review.
// Created by the upstream extraction service; mutated only by the
// review workflow. Ledger records it produced are linked via the
// created_*_id columns and are never deleted with the document.
type ScannedDocument struct {
	ID            int            `gorm:"primary_key" json:"id"`
	BusinessId    string         `gorm:"size:64;not null;index;index:idx_document_queue,priority:1" json:"business_id" binding:"required"`
	Status        DocumentStatus `gorm:"type:enum('pending','reviewing','approved','rejected');not null;default:'pending';index:idx_document_queue,priority:2" json:"status"`
	DocumentType  DocumentType   `gorm:"type:enum('invoice','credit_note','delivery_note','payment','summary','daily_entry');not null" json:"document_type"`
	SourceChannel string         `gorm:"size:64" json:"source_channel"`
	ImageUrl      string         `gorm:"size:1024" json:"image_url"`

	Candidate *ExtractedCandidate `gorm:"type:json" json:"candidate"`

	// review audit
	ReviewedBy      string     `gorm:"size:255" json:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"`

	// reviewer claim/lease; LockVersion guards against concurrent claims
	ReviewingBy string     `gorm:"size:255" json:"reviewing_by"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	LockVersion int        `gorm:"not null;default:0" json:"lock_version"`

	// ledger records produced on approval
	CreatedInvoiceId      *int `json:"created_invoice_id"`
	CreatedPaymentId      *int `json:"created_payment_id"`
	CreatedDeliveryNoteId *int `json:"created_delivery_note_id"`
	CreatedDailyEntryId   *int `json:"created_daily_entry_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d ScannedDocument) GetId() int {
	return d.ID
}

func (ScannedDocument) TableName() string {
	return "scanned_documents"
}

// ExtractedCandidate is the read-only field set the extraction service
// produced for a document. Stored as a single JSON column.
type ExtractedCandidate struct {
	SupplierName   string          `json:"supplier_name"`
	SupplierTaxId  string          `json:"supplier_tax_id"`
	DocumentNumber string          `json:"document_number"`
	DocumentDate   *time.Time      `json:"document_date"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	VatAmount      decimal.Decimal `json:"vat_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Confidence     float64         `json:"confidence"`

	InvoiceType InvoiceType `json:"invoice_type"`

	LineItems []CandidateLineItem `json:"line_items"`

	// payment fields
	IsPaid         bool                 `json:"is_paid"`
	PaymentMethods []PaymentMethodEntry `json:"payment_methods"`

	// summary fields
	IsClosed      bool                    `json:"is_closed"`
	DeliveryLines []CandidateDeliveryLine `json:"delivery_lines"`

	// daily entry fields
	EntryDate     *time.Time              `json:"entry_date"`
	IncomeLines   []CandidateNamedAmount  `json:"income_lines"`
	ReceiptLines  []CandidateNamedAmount  `json:"receipt_lines"`
	Parameters    []CandidateNamedAmount  `json:"parameters"`
	ProductUsages []CandidateProductUsage `json:"product_usages"`
}

type CandidateLineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// PaymentMethodEntry is one declared disbursement method on a document.
type PaymentMethodEntry struct {
	Method       PaymentMethodType     `json:"method"`
	Amount       decimal.Decimal       `json:"amount"`
	Installments int                   `json:"installments"`
	CreditCardId int                   `json:"credit_card_id"`
	Overrides    []InstallmentOverride `json:"overrides"`
}

// InstallmentOverride is an explicit per-installment amount+date,
// the escape hatch for uneven installment plans.
type InstallmentOverride struct {
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
}

// CandidateDeliveryLine is one child delivery note inside a consolidated summary.
type CandidateDeliveryLine struct {
	DeliveryNumber string          `json:"delivery_number"`
	DeliveryDate   *time.Time      `json:"delivery_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type CandidateNamedAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type CandidateProductUsage struct {
	ProductId    int             `json:"product_id"`
	ClosingStock decimal.Decimal `json:"closing_stock"`
}

func (c *ExtractedCandidate) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for extracted candidate: %T", value)
	}
	return json.Unmarshal(data, c)
}

func (c ExtractedCandidate) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// NewScannedDocument is the ingestion input from the extraction service.
type NewScannedDocument struct {
	DocumentType  string              `json:"document_type" binding:"required"`
	SourceChannel string              `json:"source_channel"`
	ImageUrl      string              `json:"image_url"`
	Candidate     *ExtractedCandidate `json:"candidate"`
}

func (input NewScannedDocument) validate() (DocumentType, error) {
	docType, ok := ParseDocumentType(input.DocumentType)
	if !ok {
		return "", errors.New("invalid document type")
	}
	return docType, nil
}

func CreateScannedDocument(ctx context.Context, input *NewScannedDocument) (*ScannedDocument, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	docType, err := input.validate()
	if err != nil {
		return nil, err
	}

	document := ScannedDocument{
		BusinessId:    businessId,
		Status:        DocumentStatusPending,
		DocumentType:  docType,
		SourceChannel: input.SourceChannel,
		ImageUrl:      input.ImageUrl,
		Candidate:     input.Candidate,
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.WithContext(ctx).Create(&document).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := RecordDocumentChange(ctx, tx, businessId, document.ID, ChangeReferenceTypeDocument, ChangeActionCreate, nil, &document); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	return &document, nil
}

func GetScannedDocument(ctx context.Context, businessId string, id int) (*ScannedDocument, error) {
	return utils.FetchModel[ScannedDocument](ctx, businessId, id)
}

// ListScannedDocuments returns the review queue, newest first.
// statusFilter accepts pending|reviewing|approved|rejected|all.
func ListScannedDocuments(ctx context.Context, businessId string, statusFilter string) ([]*ScannedDocument, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)

	if statusFilter != "" && statusFilter != "all" {
		status, ok := ParseDocumentStatus(statusFilter)
		if !ok {
			return nil, errors.New("invalid status filter")
		}
		dbCtx = dbCtx.Where("status = ?", status)
	}

	var documents []*ScannedDocument
	if err := dbCtx.Order("created_at DESC").Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}
