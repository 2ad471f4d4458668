package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mhodges/bigip-rule-manager/internal/api"
	"github.com/mhodges/bigip-rule-manager/internal/bigip"
	"github.com/mhodges/bigip-rule-manager/internal/config"
	"github.com/mhodges/bigip-rule-manager/internal/service"
	"github.com/mhodges/bigip-rule-manager/internal/storage/sql"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Fatalf("Failed to create data directory: %v", err)
			}
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize device client (or file shim for testing)
	var client bigip.DeviceClient
	if cfg.UseFileShim() {
		log.Printf("Using file shim for BIG-IP API: %s", cfg.BigIP.FileShim)
		client = bigip.NewFileShim(cfg.BigIP.FileShim)
	} else {
		c, err := bigip.New(bigip.Options{
			Host:          cfg.BigIP.Host,
			Username:      cfg.BigIP.Username,
			Password:      cfg.BigIP.Password,
			LoginProvider: cfg.BigIP.LoginProvider,
			SkipVerify:    cfg.BigIP.SkipVerify,
			Timeout:       cfg.BigIP.Timeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize BIG-IP client: %v", err)
		}
		if cfg.BigIP.SkipVerify {
			log.Printf("Warning: TLS certificate verification is disabled")
		}
		client = c
	}

	// Initialize apply service
	applyService := service.NewApplyService(
		store,
		client,
		cfg.Apply.Debounce,
		cfg.Apply.AutoApply,
	)

	// Create router
	router := api.NewRouter(store, applyService, cfg.Apply.BootstrapAPIKey)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting BIG-IP iRule Manager on http://%s", cfg.Server.Addr())
	log.Printf("Press Ctrl+C to stop")

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
