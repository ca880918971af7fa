package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const moduleName = "Workflow"

// materialization is the tagged union the extracted candidate is narrowed
// into before any write happens. Exactly one member is non-nil; the
// materializer switches exhaustively on it.
type materialization struct {
	invoice      *invoiceCase
	deliveryNote *deliveryNoteCase
	payment      *paymentCase
	summary      *summaryCase
	dailyEntry   *dailyEntryCase
}

type invoiceCase struct {
	supplierName  string
	supplierTaxId string
	invoiceNumber string
	date          time.Time
	subtotal      decimal.Decimal
	vatAmount     decimal.Decimal
	totalAmount   decimal.Decimal
	invoiceType   models.InvoiceType
	isPaid        bool
	methods       []models.PaymentMethodEntry
	lineItems     []models.CandidateLineItem
}

type deliveryNoteCase struct {
	supplierName   string
	supplierTaxId  string
	deliveryNumber string
	date           time.Time
	subtotal       decimal.Decimal
	vatAmount      decimal.Decimal
	totalAmount    decimal.Decimal
}

type paymentCase struct {
	date        time.Time
	totalAmount decimal.Decimal
	methods     []models.PaymentMethodEntry
}

type summaryCase struct {
	supplierName  string
	supplierTaxId string
	invoiceNumber string
	date          time.Time
	totalAmount   decimal.Decimal
	isClosed      bool
	deliveryLines []models.CandidateDeliveryLine
	lineItems     []models.CandidateLineItem
}

type dailyEntryCase struct {
	entryDate     time.Time
	incomeLines   []models.CandidateNamedAmount
	receiptLines  []models.CandidateNamedAmount
	parameters    []models.CandidateNamedAmount
	productUsages []models.CandidateProductUsage
}

// backOutVat decomposes a tax-inclusive total at the given percent rate.
// Subtotal is rounded to currency precision; VAT absorbs the remainder so
// subtotal + vat always reproduces the total exactly.
func backOutVat(total decimal.Decimal, ratePct decimal.Decimal) (subtotal, vat decimal.Decimal) {
	divisor := decimal.NewFromInt(1).Add(ratePct.Div(decimal.NewFromInt(100)))
	subtotal = total.DivRound(divisor, 2)
	vat = total.Sub(subtotal)
	return subtotal, vat
}

// narrowCandidate validates the candidate against its document type and
// builds the typed case. All validation failures happen here, before any
// record is written.
func narrowCandidate(document *models.ScannedDocument) (*materialization, error) {
	candidate := document.Candidate
	if candidate == nil {
		return nil, errors.New("document has no extracted candidate")
	}

	docDate := time.Now().UTC()
	if candidate.DocumentDate != nil {
		docDate = *candidate.DocumentDate
	}

	switch document.DocumentType {
	case models.DocumentTypeInvoice, models.DocumentTypeCreditNote:
		if candidate.SupplierName == "" {
			return nil, errors.New("supplier is required")
		}
		if !candidate.TotalAmount.IsPositive() {
			return nil, errors.New("amount is required")
		}
		invoiceType := candidate.InvoiceType
		if invoiceType == "" {
			invoiceType = models.InvoiceTypeGoods
		}
		return &materialization{invoice: &invoiceCase{
			supplierName:  candidate.SupplierName,
			supplierTaxId: candidate.SupplierTaxId,
			invoiceNumber: candidate.DocumentNumber,
			date:          docDate,
			subtotal:      candidate.Subtotal,
			vatAmount:     candidate.VatAmount,
			totalAmount:   candidate.TotalAmount,
			invoiceType:   invoiceType,
			isPaid:        candidate.IsPaid,
			methods:       candidate.PaymentMethods,
			lineItems:     candidate.LineItems,
		}}, nil

	case models.DocumentTypeDeliveryNote:
		if candidate.SupplierName == "" {
			return nil, errors.New("supplier is required")
		}
		if !candidate.TotalAmount.IsPositive() {
			return nil, errors.New("amount is required")
		}
		return &materialization{deliveryNote: &deliveryNoteCase{
			supplierName:   candidate.SupplierName,
			supplierTaxId:  candidate.SupplierTaxId,
			deliveryNumber: candidate.DocumentNumber,
			date:           docDate,
			subtotal:       candidate.Subtotal,
			vatAmount:      candidate.VatAmount,
			totalAmount:    candidate.TotalAmount,
		}}, nil

	case models.DocumentTypePayment:
		if !candidate.TotalAmount.IsPositive() && len(candidate.PaymentMethods) == 0 {
			return nil, errors.New("amount is required")
		}
		return &materialization{payment: &paymentCase{
			date:        docDate,
			totalAmount: candidate.TotalAmount,
			methods:     candidate.PaymentMethods,
		}}, nil

	case models.DocumentTypeSummary:
		if candidate.SupplierName == "" {
			return nil, errors.New("supplier is required")
		}
		if !candidate.TotalAmount.IsPositive() {
			return nil, errors.New("amount is required")
		}
		return &materialization{summary: &summaryCase{
			supplierName:  candidate.SupplierName,
			supplierTaxId: candidate.SupplierTaxId,
			invoiceNumber: candidate.DocumentNumber,
			date:          docDate,
			totalAmount:   candidate.TotalAmount,
			isClosed:      candidate.IsClosed,
			deliveryLines: candidate.DeliveryLines,
			lineItems:     candidate.LineItems,
		}}, nil

	case models.DocumentTypeDailyEntry:
		if candidate.EntryDate == nil {
			return nil, errors.New("entry date is required")
		}
		return &materialization{dailyEntry: &dailyEntryCase{
			entryDate:     *candidate.EntryDate,
			incomeLines:   candidate.IncomeLines,
			receiptLines:  candidate.ReceiptLines,
			parameters:    candidate.Parameters,
			productUsages: candidate.ProductUsages,
		}}, nil
	}

	return nil, errors.New("invalid document type")
}

// ApproveDocument materializes a claimed document into ledger records and
// moves it to the terminal approved state.
//
// The whole materialization runs inside one DB transaction, so there is no
// partially written ledger: a failure rolls everything back and the document
// stays reviewing for retry. The per-document ApprovalKey makes retries
// idempotent. Per-line price tracking runs inside the same transaction but
// its failures are isolated (logged, skipped) and never abort the approval.
func ApproveDocument(ctx context.Context, documentId int) (*models.ScannedDocument, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	username, _ := utils.GetUsernameFromContext(ctx)

	business, err := models.GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}

	document, err := models.GetScannedDocument(ctx, businessId, documentId)
	if err != nil {
		return nil, err
	}
	if document.Status.IsTerminal() {
		return nil, ErrDocumentTerminal
	}
	if document.Status != models.DocumentStatusReviewing {
		return nil, ErrDocumentNotReviewing
	}

	// validation happens before any write
	target, err := narrowCandidate(document)
	if err != nil {
		return nil, err
	}

	// Redis lock is a best-effort optimization held across the whole
	// materialization; correctness does not depend on it. The approval key
	// claim and the lock_version CAS below are the real serialization.
	releaseLock, err := utils.BusinessLock(ctx, businessId, "ApprovalLock", moduleName, "ApproveDocument")
	if err != nil {
		return nil, err
	}
	defer releaseLock()

	skip, err := beginApproval(db.WithContext(ctx), businessId, documentId, username)
	if err != nil {
		return nil, err
	}
	if skip {
		// a previous approval completed; the document is already terminal
		return models.GetScannedDocument(ctx, businessId, documentId)
	}

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	docUpdates, err := materialize(tx, ctx, business, document, target)
	if err != nil {
		tx.Rollback()
		_ = markApprovalFailed(db.WithContext(ctx), businessId, documentId)
		return nil, err
	}

	now := time.Now().UTC()
	docUpdates["status"] = models.DocumentStatusApproved
	docUpdates["reviewed_by"] = username
	docUpdates["reviewed_at"] = now
	docUpdates["reviewing_by"] = ""
	docUpdates["claimed_at"] = nil
	docUpdates["lock_version"] = gorm.Expr("lock_version + 1")

	result := tx.WithContext(ctx).Model(&models.ScannedDocument{}).
		Where("id = ? AND business_id = ? AND status = ? AND lock_version = ?",
			documentId, businessId, models.DocumentStatusReviewing, document.LockVersion).
		Updates(docUpdates)
	if result.Error != nil {
		tx.Rollback()
		_ = markApprovalFailed(db.WithContext(ctx), businessId, documentId)
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		_ = markApprovalFailed(db.WithContext(ctx), businessId, documentId)
		return nil, ErrDocumentNotReviewing
	}

	if err := models.RecordDocumentChange(ctx, tx, businessId, documentId,
		models.ChangeReferenceTypeDocument, models.ChangeActionUpdate, document, nil); err != nil {
		tx.Rollback()
		_ = markApprovalFailed(db.WithContext(ctx), businessId, documentId)
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		_ = markApprovalFailed(db.WithContext(ctx), businessId, documentId)
		return nil, err
	}

	if err := markApprovalSucceeded(db.WithContext(ctx), businessId, documentId); err != nil {
		// the ledger is committed; the key will be reclaimed as stale if needed
		config.LogError(logger, moduleName, "ApproveDocument", "failed to mark approval key", documentId, err)
	}

	return models.GetScannedDocument(ctx, businessId, documentId)
}

// materialize dispatches on the narrowed case and returns the created_*_id
// column updates for the document row. All writes use the caller's tx.
func materialize(tx *gorm.DB, ctx context.Context, business *models.Business, document *models.ScannedDocument, target *materialization) (map[string]interface{}, error) {
	switch {
	case target.invoice != nil:
		return materializeInvoice(tx, ctx, business, document, target.invoice)
	case target.deliveryNote != nil:
		return materializeDeliveryNote(tx, ctx, business, document, target.deliveryNote)
	case target.payment != nil:
		return materializePayment(tx, ctx, business, document, target.payment)
	case target.summary != nil:
		return materializeSummary(tx, ctx, business, document, target.summary)
	case target.dailyEntry != nil:
		return materializeDailyEntry(tx, ctx, business, document, target.dailyEntry)
	}
	return nil, errors.New("invalid document type")
}

func materializeInvoice(tx *gorm.DB, ctx context.Context, business *models.Business, document *models.ScannedDocument, c *invoiceCase) (map[string]interface{}, error) {
	supplier, err := models.GetOrCreateSupplierByName(tx, ctx, business.ID, c.supplierName, c.supplierTaxId)
	if err != nil {
		return nil, err
	}

	status := models.InvoiceStatusPending
	if c.isPaid {
		status = models.InvoiceStatusPaid
	}

	invoice := models.Invoice{
		BusinessId:    business.ID,
		SupplierId:    supplier.ID,
		InvoiceNumber: c.invoiceNumber,
		InvoiceDate:   c.date,
		Subtotal:      c.subtotal,
		VatAmount:     c.vatAmount,
		TotalAmount:   c.totalAmount,
		Status:        status,
		InvoiceType:   c.invoiceType,
	}
	if err := invoice.Store(tx, ctx); err != nil {
		return nil, err
	}
	if err := models.RecordDocumentChange(ctx, tx, business.ID, invoice.ID,
		models.ChangeReferenceTypeInvoice, models.ChangeActionCreate, nil, &invoice); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"created_invoice_id": invoice.ID}

	if c.isPaid {
		splits, total, err := BuildPaymentSplits(c.date, c.methods, cardLookup(tx, ctx, business.ID))
		if err != nil {
			return nil, err
		}
		if len(splits) == 0 {
			// paid with no declared methods: single immediate split
			total = c.totalAmount
			splits = []models.PaymentSplit{{
				Method:            models.PaymentMethodOther,
				Amount:            c.totalAmount,
				InstallmentsCount: 1,
				InstallmentNumber: 1,
				DueDate:           c.date,
			}}
		}
		payment := models.Payment{
			BusinessId:  business.ID,
			InvoiceId:   &invoice.ID,
			SupplierId:  supplier.ID,
			PaymentDate: c.date,
			TotalAmount: total,
			Splits:      splits,
		}
		if err := payment.Store(tx, ctx); err != nil {
			return nil, err
		}
		if err := models.RecordDocumentChange(ctx, tx, business.ID, payment.ID,
			models.ChangeReferenceTypePayment, models.ChangeActionCreate, nil, &payment); err != nil {
			return nil, err
		}
		updates["created_payment_id"] = payment.ID
	}

	TrackLineItemPrices(tx, ctx, business.ID, supplier.ID, document.ID, &invoice.ID, c.date, c.lineItems)

	return updates, nil
}

func materializeDeliveryNote(tx *gorm.DB, ctx context.Context, business *models.Business, document *models.ScannedDocument, c *deliveryNoteCase) (map[string]interface{}, error) {
	supplier, err := models.GetOrCreateSupplierByName(tx, ctx, business.ID, c.supplierName, c.supplierTaxId)
	if err != nil {
		return nil, err
	}

	note := models.DeliveryNote{
		BusinessId:     business.ID,
		SupplierId:     supplier.ID,
		DeliveryNumber: c.deliveryNumber,
		DeliveryDate:   c.date,
		Subtotal:       c.subtotal,
		VatAmount:      c.vatAmount,
		TotalAmount:    c.totalAmount,
		IsVerified:     false,
	}
	if err := note.Store(tx, ctx); err != nil {
		return nil, err
	}
	if err := models.RecordDocumentChange(ctx, tx, business.ID, note.ID,
		models.ChangeReferenceTypeDeliveryNote, models.ChangeActionCreate, nil, &note); err != nil {
		return nil, err
	}

	return map[string]interface{}{"created_delivery_note_id": note.ID}, nil
}

func materializePayment(tx *gorm.DB, ctx context.Context, business *models.Business, document *models.ScannedDocument, c *paymentCase) (map[string]interface{}, error) {
	splits, total, err := BuildPaymentSplits(c.date, c.methods, cardLookup(tx, ctx, business.ID))
	if err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		total = c.totalAmount
		splits = []models.PaymentSplit{{
			Method:            models.PaymentMethodOther,
			Amount:            c.totalAmount,
			InstallmentsCount: 1,
			InstallmentNumber: 1,
			DueDate:           c.date,
		}}
	}

	payment := models.Payment{
		BusinessId:  business.ID,
		PaymentDate: c.date,
		TotalAmount: total,
		Splits:      splits,
	}
	if err := payment.Store(tx, ctx); err != nil {
		return nil, err
	}
	if err := models.RecordDocumentChange(ctx, tx, business.ID, payment.ID,
		models.ChangeReferenceTypePayment, models.ChangeActionCreate, nil, &payment); err != nil {
		return nil, err
	}

	return map[string]interface{}{"created_payment_id": payment.ID}, nil
}

func materializeSummary(tx *gorm.DB, ctx context.Context, business *models.Business, document *models.ScannedDocument, c *summaryCase) (map[string]interface{}, error) {
	supplier, err := models.GetOrCreateSupplierByName(tx, ctx, business.ID, c.supplierName, c.supplierTaxId)
	if err != nil {
		return nil, err
	}

	vatRate := business.VatRate
	if vatRate.IsZero() {
		vatRate = decimal.NewFromInt(17)
	}
	subtotal, vat := backOutVat(c.totalAmount, vatRate)

	status := models.InvoiceStatusNeedsReview
	if !c.isClosed {
		status = models.InvoiceStatusPending
	}

	invoice := models.Invoice{
		BusinessId:     business.ID,
		SupplierId:     supplier.ID,
		InvoiceNumber:  c.invoiceNumber,
		InvoiceDate:    c.date,
		Subtotal:       subtotal,
		VatAmount:      vat,
		TotalAmount:    c.totalAmount,
		Status:         status,
		InvoiceType:    models.InvoiceTypeGoods,
		IsConsolidated: true,
	}
	if err := invoice.Store(tx, ctx); err != nil {
		return nil, err
	}
	if err := models.RecordDocumentChange(ctx, tx, business.ID, invoice.ID,
		models.ChangeReferenceTypeInvoice, models.ChangeActionCreate, nil, &invoice); err != nil {
		return nil, err
	}

	for _, line := range c.deliveryLines {
		lineDate := c.date
		if line.DeliveryDate != nil {
			lineDate = *line.DeliveryDate
		}
		lineSubtotal, lineVat := backOutVat(line.TotalAmount, vatRate)

		note := models.DeliveryNote{
			BusinessId:     business.ID,
			InvoiceId:      &invoice.ID,
			SupplierId:     supplier.ID,
			DeliveryNumber: line.DeliveryNumber,
			DeliveryDate:   lineDate,
			Subtotal:       lineSubtotal,
			VatAmount:      lineVat,
			TotalAmount:    line.TotalAmount,
			IsVerified:     c.isClosed,
		}
		if err := note.Store(tx, ctx); err != nil {
			return nil, err
		}
		if err := models.RecordDocumentChange(ctx, tx, business.ID, note.ID,
			models.ChangeReferenceTypeDeliveryNote, models.ChangeActionCreate, nil, &note); err != nil {
			return nil, err
		}
	}

	TrackLineItemPrices(tx, ctx, business.ID, supplier.ID, document.ID, &invoice.ID, c.date, c.lineItems)

	return map[string]interface{}{"created_invoice_id": invoice.ID}, nil
}

func materializeDailyEntry(tx *gorm.DB, ctx context.Context, business *models.Business, document *models.ScannedDocument, c *dailyEntryCase) (map[string]interface{}, error) {
	entryDate, err := utils.ConvertToDate(c.entryDate, business.Timezone)
	if err != nil {
		return nil, err
	}

	entry := models.DailyEntry{
		BusinessId: business.ID,
		EntryDate:  entryDate,
	}
	for _, line := range c.incomeLines {
		if line.Amount.IsZero() {
			continue
		}
		entry.IncomeLines = append(entry.IncomeLines, models.DailyIncomeLine{
			Source: line.Name,
			Amount: line.Amount,
		})
	}
	for _, line := range c.receiptLines {
		if line.Amount.IsZero() {
			continue
		}
		entry.ReceiptLines = append(entry.ReceiptLines, models.DailyReceiptLine{
			ReceiptType: line.Name,
			Amount:      line.Amount,
		})
	}
	for _, line := range c.parameters {
		if line.Amount.IsZero() {
			continue
		}
		entry.ParameterLines = append(entry.ParameterLines, models.DailyParameterLine{
			Name:  line.Name,
			Value: line.Amount,
		})
	}
	for _, usage := range c.productUsages {
		if usage.ClosingStock.IsZero() {
			continue
		}
		entry.ProductUsages = append(entry.ProductUsages, models.DailyProductUsage{
			ProductId:    usage.ProductId,
			ClosingStock: usage.ClosingStock,
		})
	}

	if err := entry.Store(tx, ctx); err != nil {
		if isDuplicateKeyErr(err) {
			return nil, ErrDailyEntryExists
		}
		return nil, err
	}
	if err := models.RecordDocumentChange(ctx, tx, business.ID, entry.ID,
		models.ChangeReferenceTypeDailyEntry, models.ChangeActionCreate, nil, &entry); err != nil {
		return nil, err
	}

	for _, usage := range entry.ProductUsages {
		if err := tx.WithContext(ctx).Model(&models.ManagedProduct{}).
			Where("business_id = ? AND id = ?", business.ID, usage.ProductId).
			Update("current_stock", usage.ClosingStock).Error; err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{"created_daily_entry_id": entry.ID}, nil
}

func cardLookup(tx *gorm.DB, ctx context.Context, businessId string) CardLookup {
	return func(cardId int) (*models.CreditCard, error) {
		var card models.CreditCard
		err := tx.WithContext(ctx).
			Where("business_id = ? AND id = ?", businessId, cardId).
			First(&card).Error
		if err != nil {
			return nil, errors.New("credit card not found")
		}
		return &card, nil
	}
}
