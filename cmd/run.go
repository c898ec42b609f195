package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"chitfund/config"
	"chitfund/database"
	"chitfund/events"
	"chitfund/graphstore"
	"chitfund/groupstore"
	"chitfund/metrics"
	"chitfund/notifier"
	"chitfund/repository"
	"chitfund/service"
)

// Run initializes and starts the settlement engine
func Run(ctx context.Context) error {
	log.Println("Starting chit fund engine...")

	// Load configuration
	cfg := config.Get()

	// Initialize ledger database connection
	log.Println("Connecting to ledger database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	log.Println("Ledger database connection established successfully")

	// Initialize group state store
	log.Println("Connecting to group state store...")
	groups, err := groupstore.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("failed to connect to group state store: %w", err)
	}
	groupRepo := groupstore.NewGroupRepository(groups)
	log.Println("Group state store connection established successfully")

	// Initialize participant graph store
	log.Println("Connecting to participant graph...")
	graph, err := graphstore.NewStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return fmt.Errorf("failed to connect to participant graph: %w", err)
	}
	participantGraph := graphstore.NewParticipantRepository(graph)
	log.Println("Participant graph connection established successfully")

	// Initialize event bus
	log.Println("Initializing event bus...")
	eventBus := events.NewBus()
	log.Println("Event bus initialized successfully")

	// Initialize unit of work factory
	log.Println("Initializing unit of work factory...")
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	log.Println("Unit of work factory initialized successfully")

	// Initialize the settlement path. Intake services (bids, ledger, groups)
	// are constructed by embedding callers; this process owns the clock.
	log.Println("Initializing settlement service...")
	settlementService := service.NewSettlementService(uowFactory, groupRepo, participantGraph, service.NewRand(), cfg.AuctionInterval)
	log.Println("Settlement service initialized successfully")

	// Wire observers onto the event bus
	metrics.Observe(eventBus)

	var natsClient *notifier.Client
	if cfg.NatsURL != "" {
		natsClient = notifier.NewClient(cfg.NatsURL)
		if err := natsClient.Connect(); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		notifier.New(natsClient).Observe(eventBus)
	} else {
		log.Println("NATS_URL not set, realtime notifications disabled")
	}

	// Start the auction clock
	clock := service.NewAuctionClock(groupRepo, settlementService, cfg.ClockPollInterval)
	stopClock := clock.Start(ctx)

	// Serve metrics
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metrics.Handler(),
		}
		go func() {
			log.Printf("Metrics listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Wait for context cancellation
	log.Printf("Engine is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down engine...")
	stopClock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down metrics server: %v", err)
		}
	}

	if natsClient != nil {
		natsClient.Close()
	}

	log.Println("Closing participant graph connection...")
	if err := graph.Close(shutdownCtx); err != nil {
		log.Printf("Error closing participant graph: %v", err)
	}

	log.Println("Closing group state store connection...")
	if err := groups.Close(shutdownCtx); err != nil {
		log.Printf("Error closing group state store: %v", err)
	}

	log.Println("Closing ledger database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Println("Shutdown completed")
	}

	return nil
}
