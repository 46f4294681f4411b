package main

import (
	"log"
	"time"

	"github.com/nagomirachel/flagsmith/internal/pkg/logger"
	"github.com/nagomirachel/flagsmith/internal/platform/config"
	"github.com/nagomirachel/flagsmith/internal/platform/database"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
	"github.com/nagomirachel/flagsmith/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	deliveryRepo := repositories.NewDeliveryRepository(db)

	log.Println("Starting background workers...")

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		workers.ReapStaleDeliveries(deliveryRepo, cfg.Webhooks.StaleAfter)
	}
}
