package models

// DocumentStatus is the lifecycle state of a scanned document.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusReviewing DocumentStatus = "reviewing"
	DocumentStatusApproved  DocumentStatus = "approved"
	DocumentStatusRejected  DocumentStatus = "rejected"
)

func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusApproved || s == DocumentStatusRejected
}

func ParseDocumentStatus(s string) (DocumentStatus, bool) {
	switch DocumentStatus(s) {
	case DocumentStatusPending, DocumentStatusReviewing, DocumentStatusApproved, DocumentStatusRejected:
		return DocumentStatus(s), true
	}
	return "", false
}

// DocumentType discriminates how an approved document materializes into ledger records.
type DocumentType string

const (
	DocumentTypeInvoice      DocumentType = "invoice"
	DocumentTypeCreditNote   DocumentType = "credit_note"
	DocumentTypeDeliveryNote DocumentType = "delivery_note"
	DocumentTypePayment      DocumentType = "payment"
	DocumentTypeSummary      DocumentType = "summary"
	DocumentTypeDailyEntry   DocumentType = "daily_entry"
)

func ParseDocumentType(s string) (DocumentType, bool) {
	switch DocumentType(s) {
	case DocumentTypeInvoice, DocumentTypeCreditNote, DocumentTypeDeliveryNote,
		DocumentTypePayment, DocumentTypeSummary, DocumentTypeDailyEntry:
		return DocumentType(s), true
	}
	return "", false
}

type InvoiceStatus string

const (
	InvoiceStatusPending     InvoiceStatus = "pending"
	InvoiceStatusPaid        InvoiceStatus = "paid"
	InvoiceStatusNeedsReview InvoiceStatus = "needs_review"
)

type InvoiceType string

const (
	InvoiceTypeGoods     InvoiceType = "goods"
	InvoiceTypeCurrent   InvoiceType = "current"
	InvoiceTypeEmployees InvoiceType = "employees"
)

type PaymentMethodType string

const (
	PaymentMethodCash         PaymentMethodType = "cash"
	PaymentMethodCheck        PaymentMethodType = "check"
	PaymentMethodBankTransfer PaymentMethodType = "bank_transfer"
	PaymentMethodCreditCard   PaymentMethodType = "credit_card"
	PaymentMethodOther        PaymentMethodType = "other"
)

type PriceAlertStatus string

const (
	PriceAlertStatusUnread    PriceAlertStatus = "unread"
	PriceAlertStatusRead      PriceAlertStatus = "read"
	PriceAlertStatusDismissed PriceAlertStatus = "dismissed"
)

func ParsePriceAlertStatus(s string) (PriceAlertStatus, bool) {
	switch PriceAlertStatus(s) {
	case PriceAlertStatusUnread, PriceAlertStatusRead, PriceAlertStatusDismissed:
		return PriceAlertStatus(s), true
	}
	return "", false
}

// ChangeAction marks what happened to the referenced record in the change feed.
type ChangeAction string

const (
	ChangeActionCreate ChangeAction = "C"
	ChangeActionUpdate ChangeAction = "U"
	ChangeActionDelete ChangeAction = "D"
)

// ChangeReferenceType identifies which table a change-feed row points at.
type ChangeReferenceType string

const (
	ChangeReferenceTypeDocument     ChangeReferenceType = "DOC"
	ChangeReferenceTypeInvoice      ChangeReferenceType = "IV"
	ChangeReferenceTypePayment      ChangeReferenceType = "PM"
	ChangeReferenceTypeDeliveryNote ChangeReferenceType = "DN"
	ChangeReferenceTypeDailyEntry   ChangeReferenceType = "DE"
	ChangeReferenceTypePriceAlert   ChangeReferenceType = "PA"
)
