package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"academia-veritas/registry-backend/internal/anchorqueue"
	"academia-veritas/registry-backend/internal/audit"
	"academia-veritas/registry-backend/internal/auth"
	"academia-veritas/registry-backend/internal/certificate"
	"academia-veritas/registry-backend/internal/config"
	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/ledger"
	"academia-veritas/registry-backend/internal/metrics"
	"academia-veritas/registry-backend/internal/notify"
	"academia-veritas/registry-backend/internal/verification"
	"academia-veritas/registry-backend/pkg/storage"
)

func main() {
	// Load .env before the config layer reads the environment.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Logging.Level == "debug" {
		if dev, derr := zap.NewDevelopment(); derr == nil {
			logger = dev
		}
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database. gorm serves the repositories; the reconciler
	// keeps its own sqlx handle on the same database.
	dbURL := cfg.Database.GetDatabaseURL()
	gormDB, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(&auth.Institution{}, &auth.Verifier{}, &certificate.Certificate{}); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if sqlDB, derr := gormDB.DB(); derr == nil {
		if cfg.Database.MaxConnections > 0 {
			sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
		}
		if cfg.Database.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		if cfg.Database.MaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)
		}
	}

	queueDB, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect reconciler database handle", zap.Error(err))
	}
	defer queueDB.Close()

	// Integrity signing and the ledger anchor client.
	if cfg.Signing.FallbackKey == "" && len(cfg.Signing.Keys) == 0 {
		logger.Fatal("At least one signing key must be configured")
	}
	keyProvider := integrity.NewStaticKeyProvider(cfg.Signing.SigningKeys(), []byte(cfg.Signing.FallbackKey))
	signer, err := integrity.NewSigner(keyProvider)
	if err != nil {
		logger.Fatal("Failed to initialize signer", zap.Error(err))
	}

	chain, err := ledger.NewStellarClient(ledger.Config{
		HorizonURL:        cfg.Ledger.HorizonURL,
		NetworkPassphrase: cfg.Ledger.NetworkPassphrase,
		AnchorSecretSeed:  cfg.Ledger.AnchorSecretSeed,
		SubmitTimeout:     cfg.Ledger.SubmitTimeout,
		MaxAttempts:       cfg.Ledger.MaxAttempts,
		RetryBackoff:      cfg.Ledger.RetryBackoff,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client", zap.Error(err))
	}

	m := metrics.New()
	hub := notify.NewHub(logger)
	defer hub.Close()

	// Verification audit trail. The registry runs without it when Mongo
	// is not configured or unreachable.
	var trail audit.Store
	if cfg.Audit.URI != "" {
		mongoCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		mongoStore, merr := audit.NewMongoStore(mongoCtx, cfg.Audit.URI, cfg.Audit.Database, logger)
		cancel()
		if merr != nil {
			logger.Warn("Verification audit trail disabled", zap.Error(merr))
		} else {
			trail = mongoStore
			defer mongoStore.Close(context.Background())
		}
	}

	// Certificate archive, also optional.
	var archive certificate.ArchiveStore
	if cfg.Archive.Bucket != "" {
		s3Ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s3Store, serr := storage.NewS3Client(s3Ctx, storage.Config{
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Endpoint:  cfg.Archive.Endpoint,
		})
		cancel()
		if serr != nil {
			logger.Warn("Certificate archive disabled", zap.Error(serr))
		} else {
			archive = s3Store
		}
	}

	// Services.
	authRepo := auth.NewRepository(gormDB)
	authService, err := auth.NewService(authRepo, auth.Config{
		JWTSecret: []byte(cfg.Auth.JWTSecret),
		TokenTTL:  cfg.Auth.TokenTTL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize auth service", zap.Error(err))
	}

	certRepo := certificate.NewRepository(gormDB)
	certService := certificate.NewService(certRepo, signer, chain, authRepo, certificate.Options{
		Archive:       archive,
		Events:        hub,
		Metrics:       m,
		AnchorTimeout: cfg.Anchoring.Timeout,
		BatchLimit:    cfg.Anchoring.BatchLimit,
	}, logger)

	aggregator := verification.NewAggregator(chain, signer, logger, 0)
	verifyService := verification.NewService(certRepo, authRepo, aggregator, trail, hub, m, logger)

	// Handlers.
	authHandler := auth.NewHandler(authService, logger)
	certHandler := certificate.NewHandler(certService, logger)
	verifyHandler := verification.NewHandler(verifyService, logger)
	eventsHandler := notify.NewHandler(hub, authService, logger)

	// Setup Router
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api")
	{
		authHandler.RegisterRoutes(api)

		certificates := api.Group("/certificates", auth.RequireRole(authService, auth.AccountInstitution))
		certHandler.RegisterRoutes(certificates)

		verify := api.Group("/verify", auth.RequireRole(authService, auth.AccountVerifier))
		verifyHandler.RegisterRoutes(verify)
	}
	eventsHandler.RegisterRoutes(router.Group("/ws"))

	// Health Check
	api.GET("/health", func(c *gin.Context) {
		auditStatus := "disabled"
		if trail != nil {
			auditStatus = "enabled"
		}
		archiveStatus := "disabled"
		if archive != nil {
			archiveStatus = "enabled"
		}
		components := gin.H{
			"database":    "up",
			"ledger":      "configured",
			"audit_trail": auditStatus,
			"archive":     archiveStatus,
		}
		status := http.StatusOK
		overall := "healthy"
		if err := queueDB.PingContext(c.Request.Context()); err != nil {
			components["database"] = "unreachable"
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
			"timestamp":  time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// In-process anchor reconciliation.
	if cfg.Reconciler.Enabled {
		reconciler := anchorqueue.NewReconciler(queueDB, chain, hub, m, anchorqueue.Config{
			PollInterval:  cfg.Reconciler.PollInterval,
			BatchSize:     cfg.Reconciler.BatchSize,
			AnchorTimeout: cfg.Reconciler.AnchorTimeout,
		}, logger)
		scheduler := anchorqueue.NewScheduler(reconciler, cfg.Reconciler.Schedule, logger)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("Failed to start anchor scheduler", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Registry API started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
