package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/nagomirachel/flagsmith/internal/api"
	"github.com/nagomirachel/flagsmith/internal/api/handlers"
	"github.com/nagomirachel/flagsmith/internal/api/middleware"
	"github.com/nagomirachel/flagsmith/internal/engine/webhooks"
	"github.com/nagomirachel/flagsmith/internal/pkg/logger"
	"github.com/nagomirachel/flagsmith/internal/pkg/metrics"
	"github.com/nagomirachel/flagsmith/internal/platform/audit"
	"github.com/nagomirachel/flagsmith/internal/platform/auth"
	"github.com/nagomirachel/flagsmith/internal/platform/config"
	"github.com/nagomirachel/flagsmith/internal/platform/database"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)
	metrics.Register()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// Repositories
	envRepo := repositories.NewEnvironmentRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	featureRepo := repositories.NewFeatureRepository(db)
	userRepo := repositories.NewUserRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLogger := audit.NewLogger(db)
	dispatcher := webhooks.NewDispatcher(webhookRepo, deliveryRepo, cfg.Webhooks)
	defer dispatcher.Stop()

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, tokenSvc)
	webhookHandler := handlers.NewWebhookHandler(webhookRepo, deliveryRepo, auditLogger)
	featureHandler := handlers.NewFeatureHandler(featureRepo, dispatcher, auditLogger)
	auditHandler := handlers.NewAuditHandler(db)
	healthHandler := handlers.NewHealthHandler(db)
	metricsHandler := handlers.NewMetricsHandler()

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	envMiddleware := middleware.NewEnvironmentMiddleware(envRepo)

	deps := &api.Dependencies{
		AuthHandler:           authHandler,
		WebhookHandler:        webhookHandler,
		FeatureHandler:        featureHandler,
		AuditHandler:          auditHandler,
		HealthHandler:         healthHandler,
		MetricsHandler:        metricsHandler,
		AuthMiddleware:        authMiddleware,
		EnvironmentMiddleware: envMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
