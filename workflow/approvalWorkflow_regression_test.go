package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"bitbucket.org/mmdatafocus/docledger_backend/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Regression: approving an invoice document must, in one transaction,
// create the supplier, the invoice, the payment with billing-cycle due
// dates, and the catalog rows; a second approval must never write a second
// ledger. Catalog resolution must be idempotent: two documents naming the
// same item resolve to one SupplierItem, and only the second one (a real
// price change) raises an alert.
func TestApproveInvoice_MaterializationAndCatalogIdempotency(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_HOST", "127.0.0.1")
	t.Setenv("REDIS_PORT", redisPort)
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "docledger_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()

	business := models.Business{
		ID:       uuid.NewString(),
		Name:     "Catalog Co",
		VatRate:  decimal.NewFromInt(17),
		Timezone: "UTC",
	}
	if err := db.Create(&business).Error; err != nil {
		t.Fatalf("create business: %v", err)
	}

	ctx = utils.SetBusinessIdInContext(ctx, business.ID)
	ctx = utils.SetUsernameInContext(ctx, "reviewer@local")

	card := models.CreditCard{
		BusinessId: business.ID,
		Name:       "Company Visa",
		BillingDay: 15,
		IsActive:   true,
	}
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("create credit card: %v", err)
	}

	docDate := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	doc, err := models.CreateScannedDocument(ctx, &models.NewScannedDocument{
		DocumentType: "invoice",
		Candidate: &models.ExtractedCandidate{
			SupplierName:   "Acme Foods",
			DocumentNumber: "INV-1001",
			DocumentDate:   &docDate,
			Subtotal:       dec("100.00"),
			VatAmount:      dec("17.00"),
			TotalAmount:    dec("117.00"),
			IsPaid:         true,
			PaymentMethods: []models.PaymentMethodEntry{
				{Method: models.PaymentMethodCreditCard, Amount: dec("117.00"), Installments: 1, CreditCardId: card.ID},
			},
			LineItems: []models.CandidateLineItem{
				{Description: "Olive Oil 5L", Quantity: dec("2"), UnitPrice: dec("10.00"), TotalPrice: dec("20.00")},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateScannedDocument: %v", err)
	}

	claimed, err := workflow.SelectDocumentForReview(ctx, doc.ID)
	if err != nil {
		t.Fatalf("SelectDocumentForReview: %v", err)
	}
	if claimed.Status != models.DocumentStatusReviewing {
		t.Fatalf("claimed status = %s, want reviewing", claimed.Status)
	}

	// a second claim on a fresh lease must lose the CAS
	if _, err := workflow.SelectDocumentForReview(ctx, doc.ID); !errors.Is(err, workflow.ErrDocumentNotPending) {
		t.Fatalf("second select err = %v, want ErrDocumentNotPending", err)
	}

	approved, err := workflow.ApproveDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ApproveDocument: %v", err)
	}
	if approved.Status != models.DocumentStatusApproved {
		t.Fatalf("approved status = %s", approved.Status)
	}
	if approved.CreatedInvoiceId == nil || approved.CreatedPaymentId == nil {
		t.Fatalf("approved document missing ledger links: %+v", approved)
	}

	invoice, err := models.GetInvoice(ctx, business.ID, *approved.CreatedInvoiceId)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if invoice.Status != models.InvoiceStatusPaid {
		t.Errorf("invoice status = %s, want paid", invoice.Status)
	}
	if !invoice.TotalAmount.Equal(dec("117.00")) {
		t.Errorf("invoice total = %s", invoice.TotalAmount)
	}

	payment, err := models.GetPayment(ctx, business.ID, *approved.CreatedPaymentId)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if len(payment.Splits) != 1 {
		t.Fatalf("split count = %d, want 1", len(payment.Splits))
	}
	// purchase on the 20th, cycle closes on the 15th: due next month's 15th
	due := payment.Splits[0].DueDate
	if due.Year() != 2024 || due.Month() != time.April || due.Day() != 15 {
		t.Errorf("split due date = %s, want 2024-04-15", due.Format("2006-01-02"))
	}

	// first observation creates the catalog entry, no alert
	var items []models.SupplierItem
	if err := db.WithContext(ctx).Where("business_id = ?", business.ID).Find(&items).Error; err != nil {
		t.Fatalf("fetch supplier items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("supplier item count = %d, want 1", len(items))
	}
	if !items[0].CurrentPrice.Equal(dec("10.00")) {
		t.Errorf("current price = %s, want 10.00", items[0].CurrentPrice)
	}
	var alertCount int64
	if err := db.WithContext(ctx).Model(&models.PriceAlert{}).Where("business_id = ?", business.ID).Count(&alertCount).Error; err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if alertCount != 0 {
		t.Fatalf("alert count after first observation = %d, want 0", alertCount)
	}

	// a retry on the terminal document must not write a second ledger
	if _, err := workflow.ApproveDocument(ctx, doc.ID); !errors.Is(err, workflow.ErrDocumentTerminal) {
		t.Fatalf("re-approve err = %v, want ErrDocumentTerminal", err)
	}
	var invoiceCount int64
	if err := db.WithContext(ctx).Model(&models.Invoice{}).Where("business_id = ?", business.ID).Count(&invoiceCount).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if invoiceCount != 1 {
		t.Fatalf("invoice count after retry = %d, want 1", invoiceCount)
	}

	// second document, same supplier and item, new price: same catalog row,
	// price updated, one unread alert
	doc2, err := models.CreateScannedDocument(ctx, &models.NewScannedDocument{
		DocumentType: "invoice",
		Candidate: &models.ExtractedCandidate{
			SupplierName:   "Acme Foods",
			DocumentNumber: "INV-1002",
			DocumentDate:   &docDate,
			TotalAmount:    dec("21.00"),
			LineItems: []models.CandidateLineItem{
				{Description: " Olive Oil 5L ", Quantity: dec("2"), UnitPrice: dec("10.50"), TotalPrice: dec("21.00")},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateScannedDocument(doc2): %v", err)
	}
	if _, err := workflow.SelectDocumentForReview(ctx, doc2.ID); err != nil {
		t.Fatalf("select doc2: %v", err)
	}
	if _, err := workflow.ApproveDocument(ctx, doc2.ID); err != nil {
		t.Fatalf("approve doc2: %v", err)
	}

	if err := db.WithContext(ctx).Where("business_id = ?", business.ID).Find(&items).Error; err != nil {
		t.Fatalf("refetch supplier items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("supplier item count after second doc = %d, want 1", len(items))
	}
	if !items[0].CurrentPrice.Equal(dec("10.50")) {
		t.Errorf("current price after second doc = %s, want 10.50", items[0].CurrentPrice)
	}

	var alerts []models.PriceAlert
	if err := db.WithContext(ctx).Where("business_id = ?", business.ID).Find(&alerts).Error; err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alert count = %d, want 1", len(alerts))
	}
	if !alerts[0].OldPrice.Equal(dec("10.00")) || !alerts[0].NewPrice.Equal(dec("10.50")) {
		t.Errorf("alert prices = %s -> %s", alerts[0].OldPrice, alerts[0].NewPrice)
	}
	if alerts[0].ChangePct == nil || !alerts[0].ChangePct.Equal(dec("5")) {
		t.Errorf("alert change pct = %v, want 5", alerts[0].ChangePct)
	}

	var priceCount int64
	if err := db.WithContext(ctx).Model(&models.SupplierItemPrice{}).
		Where("business_id = ? AND supplier_item_id = ?", business.ID, items[0].ID).
		Count(&priceCount).Error; err != nil {
		t.Fatalf("count price history: %v", err)
	}
	if priceCount != 2 {
		t.Errorf("price history rows = %d, want 2", priceCount)
	}
}

// Regression: a SUCCEEDED approval key short-circuits a retry without
// touching the ledger; a FAILED key is reclaimed so the reviewer can retry.
func TestApproveDocument_ApprovalKeyRetrySemantics(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	if config.GetDB() == nil {
		t.Skip("run together with TestApproveInvoice_MaterializationAndCatalogIdempotency (shared containers)")
	}

	ctx := context.Background()
	db := config.GetDB()

	business := models.Business{
		ID:       uuid.NewString(),
		Name:     "Retry Co",
		VatRate:  decimal.NewFromInt(17),
		Timezone: "UTC",
	}
	if err := db.Create(&business).Error; err != nil {
		t.Fatalf("create business: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, business.ID)
	ctx = utils.SetUsernameInContext(ctx, "reviewer@local")

	docDate := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	doc, err := models.CreateScannedDocument(ctx, &models.NewScannedDocument{
		DocumentType: "invoice",
		Candidate: &models.ExtractedCandidate{
			SupplierName:   "Beta Supplies",
			DocumentNumber: "INV-2001",
			DocumentDate:   &docDate,
			TotalAmount:    dec("50.00"),
		},
	})
	if err != nil {
		t.Fatalf("CreateScannedDocument: %v", err)
	}
	if _, err := workflow.SelectDocumentForReview(ctx, doc.ID); err != nil {
		t.Fatalf("select: %v", err)
	}

	// a key that already SUCCEEDED means a previous approval completed:
	// the retry returns without materializing anything
	key := models.ApprovalKey{
		BusinessId: business.ID,
		DocumentId: doc.ID,
		Status:     models.ApprovalKeyStatusSucceeded,
		ClaimedBy:  "reviewer@local",
	}
	if err := db.Create(&key).Error; err != nil {
		t.Fatalf("seed approval key: %v", err)
	}
	if _, err := workflow.ApproveDocument(ctx, doc.ID); err != nil {
		t.Fatalf("approve with succeeded key: %v", err)
	}
	var invoiceCount int64
	if err := db.WithContext(ctx).Model(&models.Invoice{}).Where("business_id = ?", business.ID).Count(&invoiceCount).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if invoiceCount != 0 {
		t.Fatalf("succeeded key still materialized %d invoices", invoiceCount)
	}

	// a FAILED key is reclaimed and the approval goes through
	if err := db.Model(&models.ApprovalKey{}).Where("id = ?", key.ID).
		Update("status", models.ApprovalKeyStatusFailed).Error; err != nil {
		t.Fatalf("mark key failed: %v", err)
	}
	approved, err := workflow.ApproveDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("approve after failed key: %v", err)
	}
	if approved.Status != models.DocumentStatusApproved || approved.CreatedInvoiceId == nil {
		t.Fatalf("approval after reclaim did not materialize: %+v", approved)
	}
	var reclaimed models.ApprovalKey
	if err := db.Where("id = ?", key.ID).First(&reclaimed).Error; err != nil {
		t.Fatalf("refetch key: %v", err)
	}
	if reclaimed.Status != models.ApprovalKeyStatusSucceeded {
		t.Errorf("key status after approval = %s, want SUCCEEDED", reclaimed.Status)
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		panic(err)
	}
	return d
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("docledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("docledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=docledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
