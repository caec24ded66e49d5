package main

import (
	"fmt"
	"log"

	"github.com/sparta-security/sparta/internal/api"
	"github.com/sparta-security/sparta/internal/config"
	"github.com/sparta-security/sparta/internal/state"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The API is read-only over the committed file tree; it needs the
	// state and report locations but no credentials.
	store := state.NewStore(cfg.StateDir, cfg.BatchSize, cfg.MaxRetries)

	// Initialize handler
	handler := api.NewHandler(cfg.ReportsDir, store)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	fmt.Printf("Starting API server on %s\n", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
