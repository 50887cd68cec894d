package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/nedworks/inventry_backend/config"
	"bitbucket.org/nedworks/inventry_backend/middlewares"
	"bitbucket.org/nedworks/inventry_backend/models"
	"bitbucket.org/nedworks/inventry_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("inventry-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/login", loginHandler)

	api := r.Group("/api", middlewares.AuthRequired())
	{
		api.GET("/me", meHandler)

		admin := api.Group("", middlewares.AdminRequired())
		{
			admin.POST("/users", createUserHandler)

			admin.POST("/departments", createDepartmentHandler)
			admin.PUT("/departments/:id", updateDepartmentHandler)
			admin.DELETE("/departments/:id", deleteDepartmentHandler)

			admin.POST("/stores", createStoreHandler)
			admin.PUT("/stores/:id", updateStoreHandler)
			admin.DELETE("/stores/:id", deleteStoreHandler)

			admin.POST("/stock-registers", createStockRegisterHandler)
			admin.PUT("/stock-registers/:id", updateStockRegisterHandler)
			admin.PATCH("/stock-registers/:id/active", toggleStockRegisterHandler)

			admin.POST("/locations", createLocationHandler)
			admin.PUT("/locations/:id", updateLocationHandler)
			admin.DELETE("/locations/:id", deleteLocationHandler)

			admin.POST("/item-categories", createItemCategoryHandler)
			admin.PUT("/item-categories/:id", updateItemCategoryHandler)
			admin.DELETE("/item-categories/:id", deleteItemCategoryHandler)

			admin.POST("/items", createItemHandler)
			admin.PUT("/items/:id", updateItemHandler)
			admin.PATCH("/items/:id/active", toggleItemHandler)

			admin.POST("/stock-entries/adjustment", createAdjustmentHandler)
			admin.POST("/batches/:id/deactivate", deactivateBatchHandler)
		}

		api.GET("/departments", listDepartmentHandler)
		api.GET("/departments/:id", getDepartmentHandler)
		api.GET("/stores", listStoreHandler)
		api.GET("/stores/:id", getStoreHandler)
		api.GET("/stock-registers", listStockRegisterHandler)
		api.GET("/stock-registers/:id", getStockRegisterHandler)
		api.GET("/locations", listLocationHandler)
		api.GET("/locations/:id", getLocationHandler)
		api.GET("/item-categories", listItemCategoryHandler)
		api.GET("/items", listItemHandler)
		api.GET("/items/:id", getItemHandler)

		api.POST("/inspections", createInspectionHandler)
		api.PUT("/inspections/:id", updateInspectionHandler)
		api.DELETE("/inspections/:id", deleteInspectionHandler)
		api.POST("/inspections/:id/process", processInspectionHandler)
		api.GET("/inspections/:id", getInspectionHandler)
		api.GET("/inspections", listInspectionHandler)

		api.GET("/batches", listBatchHandler)
		api.GET("/batches/:id", getBatchHandler)
		api.GET("/inventory", listInventoryHandler)
		api.GET("/ledger/balance", ledgerBalanceHandler)
		api.GET("/stock-entries", listStockEntryHandler)
		api.GET("/stock-entries/:id", getStockEntryHandler)

		api.POST("/transfer-notes", createTransferNoteHandler)
		api.PUT("/transfer-notes/:id", updateTransferNoteHandler)
		api.POST("/transfer-notes/:id/issue", issueTransferNoteHandler)
		api.POST("/transfer-notes/:id/acknowledge", acknowledgeTransferNoteHandler)
		api.POST("/transfer-notes/:id/cancel", cancelTransferNoteHandler)
		api.GET("/transfer-notes/:id", getTransferNoteHandler)
		api.GET("/transfer-notes", listTransferNoteHandler)

		api.POST("/requisitions", createRequisitionHandler)
		api.POST("/requisitions/:id/submit", submitRequisitionHandler)
		api.POST("/requisitions/:id/approve", approveRequisitionHandler)
		api.POST("/requisitions/:id/reject", rejectRequisitionHandler)
		api.POST("/requisitions/:id/transit", transitRequisitionHandler)
		api.POST("/requisitions/:id/acknowledge", acknowledgeRequisitionHandler)
		api.GET("/requisitions/:id", getRequisitionHandler)
		api.GET("/requisitions", listRequisitionHandler)

		api.POST("/asset-tags/generate", generateAssetTagsHandler)
		api.PATCH("/asset-tags/:id/status", updateAssetTagStatusHandler)
		api.PATCH("/asset-tags/:id/location", relocateAssetTagHandler)
		api.GET("/asset-tags/:id", getAssetTagHandler)
		api.GET("/asset-tags/scan/:uuid", scanAssetTagHandler)
		api.GET("/asset-tags", listAssetTagHandler)

		api.GET("/reports/stock-register/:id", stockRegisterReportHandler)
		api.GET("/reports/stock-register/:id/export", stockRegisterExportHandler)
		api.GET("/reports/store-inventory/:id", storeInventoryReportHandler)
		api.GET("/reports/batch-movement/:id", batchMovementReportHandler)
	}
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

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r)
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
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

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
