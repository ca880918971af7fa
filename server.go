package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/docledger_backend/config"
	"bitbucket.org/mmdatafocus/docledger_backend/middlewares"
	"bitbucket.org/mmdatafocus/docledger_backend/models"
	"bitbucket.org/mmdatafocus/docledger_backend/reports"
	"bitbucket.org/mmdatafocus/docledger_backend/utils"
	"bitbucket.org/mmdatafocus/docledger_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("docledger-backend")

type documentIdRequest struct {
	Id int `json:"id" binding:"required"`
}

type rejectDocumentRequest struct {
	Id     int    `json:"id" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

type listDocumentsRequest struct {
	Status string `json:"status"`
}

type listPriceAlertsRequest struct {
	Status string `json:"status"`
}

type markPriceAlertRequest struct {
	Id     int    `json:"id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

type itemPriceHistoryRequest struct {
	ItemId int `json:"item_id" binding:"required"`
}

// statusForError maps typed workflow errors onto HTTP statuses so retries
// and conflicts are distinguishable on the wire.
func statusForError(err error) int {
	switch {
	case errors.Is(err, workflow.ErrDocumentNotPending),
		errors.Is(err, workflow.ErrDocumentTerminal),
		errors.Is(err, workflow.ErrDocumentNotReviewing),
		errors.Is(err, workflow.ErrApprovalInProgress),
		errors.Is(err, workflow.ErrDailyEntryExists):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorRecordNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// requireSession pulls the authenticated username and tenant out of the
// request context. SessionMiddleware populates both.
func requireSession(c *gin.Context) (context.Context, bool) {
	ctx := c.Request.Context()
	if _, ok := utils.GetUsernameFromContext(ctx); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "business-id header is required"})
		return nil, false
	}
	return ctx, true
}

// ingestDocumentHandler is the upstream boundary: the extraction service
// authenticates with a business-scoped service JWT, not a reviewer session.
func ingestDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		const bearerPrefix = "Bearer "
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, bearerPrefix) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := utils.JwtValidate(strings.TrimPrefix(auth, bearerPrefix))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), claims.BusinessId)
		ctx = utils.SetUsernameInContext(ctx, claims.Service)

		var input models.NewScannedDocument
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		document, err := models.CreateScannedDocument(ctx, &input)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": document})
	}
}

func listDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req listDocumentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		documents, err := workflow.ListDocuments(ctx, req.Status)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": documents})
	}
}

// documentTransitionHandler serves select/skip/approve, which share the
// same request shape and differ only in the workflow call.
func documentTransitionHandler(operation string, transition func(ctx context.Context, documentId int) (*models.ScannedDocument, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		ctx, span := tracer.Start(ctx, "documents."+operation)
		defer span.End()
		var req documentIdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}
		document, err := transition(ctx, req.Id)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": document})
	}
}

// ledgerGetHandler serves the drill-down reads from an approved document's
// created_*_id links.
func ledgerGetHandler[T any](fetch func(ctx context.Context, businessId string, id int) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req documentIdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		record, err := fetch(ctx, businessId, req.Id)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": record})
	}
}

func rejectDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req rejectDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id and reason are required"})
			return
		}
		document, err := workflow.RejectDocument(ctx, req.Id, req.Reason)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": document})
	}
}

func deleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req documentIdRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}
		if err := workflow.DeleteDocument(ctx, req.Id); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": req.Id})
	}
}

func listPriceAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req listPriceAlertsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		alerts, err := models.ListPriceAlerts(ctx, businessId, req.Status)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

func markPriceAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req markPriceAlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id and status are required"})
			return
		}
		status, ok := models.ParsePriceAlertStatus(req.Status)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be read or dismissed"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		alert, err := models.MarkPriceAlert(ctx, businessId, req.Id, status)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alert": alert})
	}
}

func itemPriceHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		var req itemPriceHistoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		history, err := models.GetItemPriceHistory(ctx, businessId, req.ItemId)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": history})
	}
}

func exportPriceHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requireSession(c)
		if !ok {
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="price_history.xlsx"`)
		if err := reports.WritePriceHistoryXlsx(ctx, businessId, c.Writer); err != nil {
			config.LogError(config.GetLogger(), "Server", "exportPriceHistoryHandler", "WritePriceHistoryXlsx", businessId, err)
			c.Status(http.StatusInternalServerError)
			return
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDb() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "business-id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/documents/ingest", ingestDocumentHandler())
	r.POST("/api/documents/list", listDocumentsHandler())
	r.POST("/api/documents/select", documentTransitionHandler("select", workflow.SelectDocumentForReview))
	r.POST("/api/documents/skip", documentTransitionHandler("skip", workflow.SkipDocument))
	r.POST("/api/documents/approve", documentTransitionHandler("approve", workflow.ApproveDocument))
	r.POST("/api/documents/reject", rejectDocumentHandler())
	r.POST("/api/documents/delete", deleteDocumentHandler())
	r.POST("/api/invoices/get", ledgerGetHandler(models.GetInvoice))
	r.POST("/api/payments/get", ledgerGetHandler(models.GetPayment))
	r.POST("/api/delivery-notes/get", ledgerGetHandler(models.GetDeliveryNote))
	r.POST("/api/daily-entries/get", ledgerGetHandler(models.GetDailyEntry))
	r.POST("/api/price-alerts/list", listPriceAlertsHandler())
	r.POST("/api/price-alerts/mark", markPriceAlertHandler())
	r.POST("/api/supplier-items/history", itemPriceHistoryHandler())
	r.GET("/api/price-history/export", exportPriceHistoryHandler())
	r.POST("/upload", uploadDocumentHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Outbox dispatcher publishes document change records AFTER commit.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go func() {
		if err := config.EnsureDocumentChangeTopic(dispatcherCtx); err != nil {
			config.LogError(logger, "Server", "main", "EnsureDocumentChangeTopic", nil, err)
		}
	}()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers before draining so they don't pick up new work.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDb(); rdb != nil {
		_ = rdb.Close()
	}
}
