package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"

	"billflow/internal/caching"
	"billflow/internal/handlers"
	"billflow/internal/jobs/background"
	"billflow/internal/middleware"
	"billflow/internal/repositories"
	"billflow/internal/services"
	"billflow/pkg/database"
)

const version = "1.0.0"

func main() {
	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	maxConns := int32(0)
	if maxConnsStr := os.Getenv("DATABASE_MAX_CONNS"); maxConnsStr != "" {
		if n, err := strconv.Atoi(maxConnsStr); err == nil {
			maxConns = int32(n)
		}
	}

	pool, err := database.NewPool(context.Background(), databaseURL, maxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	jwksURL := os.Getenv("JWKS_URL")
	if jwtSecret == "" && jwksURL == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret: %s", jwtSecret)
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379" // Default Redis address
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0 // Default DB
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// MinIO configuration
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000" // Default MinIO endpoint
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin" // Default for development
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin" // Default for development
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	pdfBucket := os.Getenv("INVOICE_PDF_BUCKET")
	if pdfBucket == "" {
		pdfBucket = "billflow-invoices"
	}

	// Payment gateway configuration
	gatewayAPIKey := os.Getenv("GATEWAY_API_KEY")
	gatewayAPISecret := os.Getenv("GATEWAY_API_SECRET")
	gatewayWebhookSecret := os.Getenv("GATEWAY_WEBHOOK_SECRET")
	gatewayBaseURL := os.Getenv("GATEWAY_BASE_URL")
	if gatewayBaseURL == "" {
		gatewayBaseURL = "https://api.gateway.example.com"
	}
	gatewayName := os.Getenv("GATEWAY_NAME")
	if gatewayName == "" {
		gatewayName = "mockpay"
	}

	taxRate := 0.0
	if taxRateStr := os.Getenv("TAX_RATE"); taxRateStr != "" {
		if rate, err := strconv.ParseFloat(taxRateStr, 64); err == nil {
			taxRate = rate
		}
	}

	// Initialize MinIO service
	minioSvc, err := services.NewMinioService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}
	if err := minioSvc.EnsureBucketExists(context.Background(), pdfBucket); err != nil {
		log.Printf("WARN: failed to ensure invoice bucket %s: %v", pdfBucket, err)
	}

	// Create repositories
	planRepo := repositories.NewPlanRepository(pool)
	subscriptionRepo := repositories.NewSubscriptionRepository(pool)
	invoiceRepo := repositories.NewInvoiceRepository(pool)
	paymentRepo := repositories.NewPaymentRepository(pool)
	usageRepo := repositories.NewUsageRepository(pool)

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Create services
	gateway := services.NewPaymentGateway(gatewayAPIKey, gatewayAPISecret, gatewayWebhookSecret, gatewayBaseURL)
	invoiceSvc := services.NewInvoiceService(invoiceRepo, paymentRepo, usageRepo, gateway, taxRate, gatewayName)
	subscriptionSvc := services.NewSubscriptionService(subscriptionRepo, planRepo, invoiceSvc, gateway, services.NewCacheCoordinator(cacheSvc))
	quotaSvc := services.NewQuotaService(subscriptionRepo, planRepo, usageRepo, cacheSvc)
	usageSvc := services.NewUsageService(usageRepo, cacheSvc)
	planSvc := services.NewPlanService(planRepo, cacheSvc)

	// Create handlers
	planHandlers := handlers.NewPlanHandlers(planSvc)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionSvc)
	quotaHandlers := handlers.NewQuotaHandlers(quotaSvc)
	usageHandlers := handlers.NewUsageHandlers(usageSvc)
	invoiceHandlers := handlers.NewInvoiceHandlers(invoiceSvc, minioSvc, pdfBucket)
	paymentHandlers := handlers.NewPaymentHandlers(invoiceSvc, paymentRepo)
	webhookHandlers := handlers.NewWebhookHandlers(gateway, subscriptionSvc, invoiceSvc, paymentRepo)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)

	// Auth middleware
	authMiddleware, err := middleware.NewAuthMiddleware(jwtSecret, jwksURL)
	if err != nil {
		log.Fatalf("Failed to initialize auth middleware: %v", err)
	}
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(quotaSvc)

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

	billing := v1.Group("/billing")

	// Public catalog and gateway callbacks (no JWT required)
	billing.GET("/plans", planHandlers.ListPlans)
	billing.GET("/plans/:id", planHandlers.GetPlan)
	billing.POST("/webhooks/payment", webhookHandlers.HandlePaymentWebhook)

	// Protected routes
	protected := billing.Group("")
	protected.Use(authMiddleware)
	protected.Use(middleware.UserContext())
	protected.Use(rateLimitMiddleware)

	// Subscription routes
	protected.POST("/subscription", subscriptionHandlers.CreateSubscription)
	protected.GET("/subscription", subscriptionHandlers.GetCurrentSubscription)
	protected.GET("/subscriptions", subscriptionHandlers.ListSubscriptions)
	protected.POST("/subscription/:id/cancel", subscriptionHandlers.CancelSubscription)
	protected.POST("/subscription/:id/upgrade", subscriptionHandlers.UpgradeSubscription)

	// Quota and usage routes
	protected.GET("/quota", quotaHandlers.GetQuota)
	protected.POST("/quota/refresh", quotaHandlers.RefreshQuota)
	protected.POST("/usage", usageHandlers.TrackUsage)
	protected.GET("/usage", usageHandlers.ListUsage)

	// Invoice routes
	protected.GET("/invoices", invoiceHandlers.ListInvoices)
	protected.GET("/invoices/:id", invoiceHandlers.GetInvoice)
	protected.GET("/invoices/:id/pdf", invoiceHandlers.DownloadInvoicePDF)
	protected.POST("/invoices/generate", invoiceHandlers.GenerateUsageInvoice)
	protected.POST("/invoices/:id/void", invoiceHandlers.VoidInvoice)
	protected.POST("/invoices/:id/refund", invoiceHandlers.RefundInvoice)

	// Payment routes
	protected.POST("/payments", paymentHandlers.CreatePayment)
	protected.GET("/payments", paymentHandlers.ListPayments)
	protected.GET("/payments/:id", paymentHandlers.GetPayment)

	// Background sweeps
	jobScheduler := background.NewJobScheduler(subscriptionSvc, invoiceSvc)
	if err := jobScheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer func() {
		if err := jobScheduler.Stop(); err != nil {
			log.Printf("WARN: failed to stop job scheduler: %v", err)
		}
	}()

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("Billflow server v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
