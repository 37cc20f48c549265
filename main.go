package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aios-native/orchestrator/config"
	"github.com/aios-native/orchestrator/internal/backend"
	"github.com/aios-native/orchestrator/internal/convctx"
	"github.com/aios-native/orchestrator/internal/engine"
	"github.com/aios-native/orchestrator/internal/knowledge"
	"github.com/aios-native/orchestrator/internal/tools"
	transport "github.com/aios-native/orchestrator/internal/transport/http"
	"github.com/aios-native/orchestrator/policy"
	"github.com/aios-native/orchestrator/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting turn engine...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Backend: %s (%s)", cfg.BackendURL, cfg.BackendModel)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize knowledge index
	kn, err := knowledge.New(cfg.DataDir, nil)
	if err != nil {
		log.Fatalf("Failed to initialize knowledge store: %v", err)
	}

	// Load and compile policy
	ctx := context.Background()
	doc := policy.DefaultDocument()
	if cfg.PolicyPath != "" {
		doc, err = policy.LoadDocument(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("Failed to load policy document: %v", err)
		}
	}
	policies, err := policy.NewStore(ctx, doc, cfg.PolicyPath)
	if err != nil {
		log.Fatalf("Failed to compile policy: %v", err)
	}

	// Initialize reasoning backend
	be := backend.NewHTTPBackend(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendModel, cfg.BackendTimeout)

	// Register built-in tools
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, kn)

	// Initialize conversation context and engine
	conv := convctx.New(db, kn, 0)
	eng := engine.New(db, conv, policies, be, registry, nil)

	// Create HTTP server
	server := transport.NewServer(eng, db, registry, policies)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down turn engine...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Turn engine stopped")
}
