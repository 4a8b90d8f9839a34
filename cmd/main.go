package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"

	"clearbill/internal/caching"
	"clearbill/internal/handlers"
	"clearbill/internal/jobs"
	"clearbill/internal/jobs/background"
	"clearbill/internal/middleware"
	"clearbill/internal/repositories"
	"clearbill/internal/services"
	"clearbill/pkg/database"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// The admin identity is the only caller allowed to run sweeps
	adminIDStr := os.Getenv("ADMIN_USER_ID")
	if adminIDStr == "" {
		log.Fatal("ADMIN_USER_ID environment variable is required")
	}
	adminID, err := uuid.Parse(adminIDStr)
	if err != nil {
		log.Fatalf("Invalid ADMIN_USER_ID: %v", err)
	}

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret, sessions will not survive restarts")
	}
	tokenTTL := envInt("TOKEN_TTL_SECONDS", 900)
	refreshTTL := envInt("REFRESH_TTL_SECONDS", 30*24*3600)

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := envInt("REDIS_DB", 0)

	// MinIO configuration
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000"
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin"
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin"
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	// Initialize MinIO service
	minioSvc, err := services.NewMinioService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}
	if err := minioSvc.EnsureBucketExists(context.Background(), "invoices"); err != nil {
		log.Printf("WARNING: Failed to ensure invoices bucket: %v", err)
	}

	// Create repositories
	userRepo := repositories.NewUserRepo(pool)
	tokenRepo := repositories.NewTokenRepo(pool)
	invoiceRepo := repositories.NewInvoiceRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	auditLogRepo := repositories.NewAuditLogsRepo(pool)
	txRunner := repositories.NewTxRunner(pool)

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Task queue client; webhook deliveries and scheduled sweeps go
	// through it
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword, DB: redisDB}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	enqueuer := jobs.NewEnqueuer(asynqClient)

	// Create services
	clock := clockwork.NewRealClock()
	notifier := services.NewNotificationService(redisAddr, redisPassword, redisDB, enqueuer, clock)
	invoiceSvc := services.NewInvoiceService(txRunner, invoiceRepo, walletRepo, cacheSvc, notifier, clock, adminID)
	walletSvc := services.NewWalletService(txRunner, walletRepo, clock)
	authSvc := services.NewAuthService(tokenRepo, cacheSvc, jwtSecret, tokenTTL, refreshTTL)
	auditSvc := services.NewAuditLogsService(auditLogRepo)

	// Background workers
	taskHandlers := jobs.NewTaskHandlers(invoiceSvc, notifier)
	asynqSrv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 10})
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeOverdueSweep, taskHandlers.HandleOverdueSweep)
	mux.HandleFunc(jobs.TypeWebhookDelivery, taskHandlers.HandleWebhookDelivery)
	go func() {
		if err := asynqSrv.Run(mux); err != nil {
			log.Fatalf("Failed to run task server: %v", err)
		}
	}()

	overdueAlerts := jobs.NewOverdueAlertService(invoiceRepo, clock)
	scheduler := background.NewJobScheduler(enqueuer, overdueAlerts, adminID)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create handlers
	authHandlers := handlers.NewAuthHandlers(authSvc, userRepo)
	userHandlers := handlers.NewUserHandlers(userRepo)
	invoiceHandlers := handlers.NewInvoiceHandlers(invoiceSvc, minioSvc)
	walletHandlers := handlers.NewWalletHandlers(walletSvc)
	webhookHandlers := handlers.NewWebhookHandlers(notifier)
	jobHandlers := handlers.NewJobHandlers(invoiceSvc, enqueuer, overdueAlerts, scheduler)
	auditHandlers := handlers.NewAuditLogsHandlers(auditSvc)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)

	auditMw := middleware.NewAuditMiddleware(auditSvc)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Version middleware
	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/metrics", healthHandlers.GetMetrics)

	// API routes
	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))

	// Authentication routes (no JWT required for signup/login)
	auth := v1.Group("/auth")
	auth.Use(middleware.RateLimit(cacheSvc, 20, time.Minute))
	auth.POST("/signup", authHandlers.Signup)
	auth.POST("/login", authHandlers.Login)
	auth.POST("/refresh", authHandlers.Refresh)

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.JWT(jwtSecret))
	protected.Use(middleware.AttachIdentity(cacheSvc))
	protected.Use(auditMw.AuditRequest())

	protected.POST("/auth/logout", authHandlers.Logout)
	protected.GET("/me", authHandlers.Me)
	protected.PUT("/me", userHandlers.UpdateProfile)

	// Invoice routes
	protected.GET("/invoices", invoiceHandlers.ListInvoices)
	protected.POST("/invoices", invoiceHandlers.CreateInvoice)
	protected.GET("/invoices/analytics", invoiceHandlers.GetInvoiceAnalytics)
	protected.GET("/invoices/:id", invoiceHandlers.GetInvoiceByID)
	protected.PUT("/invoices/:id", invoiceHandlers.ModifyInvoice)
	protected.POST("/invoices/:id/approve", invoiceHandlers.ApproveInvoice)
	protected.POST("/invoices/:id/reject", invoiceHandlers.RejectInvoice)
	protected.POST("/invoices/:id/pay", invoiceHandlers.PayInvoice)
	protected.POST("/invoices/:id/generate-pdf", invoiceHandlers.GenerateInvoicePDF)

	// Wallet routes
	protected.GET("/wallet", walletHandlers.GetBalance)
	protected.POST("/wallet/deposit", walletHandlers.Deposit)

	// Webhook subscription routes
	protected.GET("/webhooks/subscriptions", webhookHandlers.ListSubscriptions)
	protected.POST("/webhooks/subscriptions", webhookHandlers.CreateSubscription)
	protected.GET("/webhooks/subscriptions/:id", webhookHandlers.GetSubscription)
	protected.PUT("/webhooks/subscriptions/:id", webhookHandlers.UpdateSubscription)
	protected.DELETE("/webhooks/subscriptions/:id", webhookHandlers.DeleteSubscription)

	// Admin routes
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin(adminID))
	admin.GET("/users", userHandlers.ListUsers)
	admin.POST("/jobs/overdue-sweep", jobHandlers.TriggerOverdueSweep)
	admin.POST("/jobs/overdue-sweep/enqueue", jobHandlers.EnqueueOverdueSweep)
	admin.GET("/jobs/due-alerts", jobHandlers.GetDueDateAlerts)
	admin.GET("/jobs/status", jobHandlers.GetJobStatus)
	admin.GET("/audit-logs", auditHandlers.ListAuditLogs)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("Clearbill server v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
