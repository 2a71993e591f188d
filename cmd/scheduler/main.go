package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ticketdex/settlement-scheduler/pkg/config"
	"github.com/ticketdex/settlement-scheduler/pkg/ledger"
	"github.com/ticketdex/settlement-scheduler/pkg/scheduler"
	"github.com/ticketdex/settlement-scheduler/pkg/store"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (optional, env vars apply on top)")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ticket auction settlement scheduler")

	// Initialize durable store
	st := store.New(cfg.DataDir, logger)
	if err := st.Init(); err != nil {
		logger.Fatal("Failed to initialize durable store", zap.Error(err))
	}

	// Reflect deployment settings into the persisted scheduler state so the
	// inspection CLI shows what this process actually runs with.
	if err := st.UpdateConfig(func(c *store.SchedulerConfig) {
		c.SettlementIntervalMs = cfg.Scheduler.SettlementIntervalMs
		c.MaxSettlementAttempts = cfg.Scheduler.MaxSettlementAttempts
		c.ContractAddress = cfg.Ledger.ContractAddress
		c.RPCURL = cfg.Ledger.RPCURL
		if cfg.Ledger.CoordinatorAddress != "" {
			c.CoordinatorAddress = cfg.Ledger.CoordinatorAddress
		}
	}); err != nil {
		logger.Fatal("Failed to persist scheduler settings", zap.Error(err))
	}

	// Initialize ledger client
	ledgerClient, err := ledger.NewClient(&cfg.Ledger, logger)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client", zap.Error(err))
	}
	defer ledgerClient.Close()

	// Start scheduler loops first so we can reference them in HTTP handlers
	ctx := context.Background()
	reconciler := scheduler.NewReconciler(st, ledgerClient, logger)
	worker := scheduler.NewWorker(st, ledgerClient, logger, cfg.Scheduler.SettlementBatchSize)
	supervisor := scheduler.NewSupervisor(&cfg.Scheduler, st, reconciler, worker, logger)
	if err := supervisor.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer supervisor.Stop()

	// Setup HTTP server for API and metrics
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint (liveness)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness endpoint
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !supervisor.IsRunning() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/auctions", handleGetAuctions(st, logger))
		r.Get("/auctions/{id}", handleGetAuction(st, logger))
		r.Get("/queue", handleGetQueue(st, logger))
		r.Get("/status", handleGetStatus(st, supervisor, logger))
	})

	// Start HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Scheduler stopped")
}

func handleGetAuctions(st *store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auctions, err := st.Auctions()
		if err != nil {
			logger.Error("Failed to list auctions", zap.Error(err))
			http.Error(w, "Failed to list auctions", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"auctions": auctions}); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}

func handleGetAuction(st *store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		auction, err := st.GetAuction(id)
		if err != nil {
			logger.Error("Failed to get auction", zap.Error(err), zap.String("id", id))
			http.Error(w, "Failed to get auction", http.StatusInternalServerError)
			return
		}
		if auction == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(auction); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}

func handleGetQueue(st *store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queue, err := st.Queue()
		if err != nil {
			logger.Error("Failed to read queue", zap.Error(err))
			http.Error(w, "Failed to read queue", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"queue": queue}); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}

func handleGetStatus(st *store.Store, supervisor *scheduler.Supervisor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := st.Config()
		if err != nil {
			logger.Error("Failed to read scheduler state", zap.Error(err))
			http.Error(w, "Failed to read scheduler state", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"running":            supervisor.IsRunning(),
			"lastProcessedBlock": cfg.LastProcessedBlock,
			"settlementEnabled":  cfg.SettlementEnabled,
			"coordinatorAddress": cfg.CoordinatorAddress,
		}); err != nil {
			logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}
