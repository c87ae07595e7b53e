/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Meridian waterfall engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite run store
  3. Optionally run a scenario file once and exit (-scenario)
  4. Create API handler, configure router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: waterfall.db)
             Use ":memory:" for an in-memory database
  -scenario  Path to a YAML/JSON scenario file. When set, the scenario
             is run once, persisted, and the server exits.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Serve the API with a file database
  ./server -db="./data/waterfall.db"

  # One-shot run of a scenario file
  ./server -db="./data/waterfall.db" -scenario=./scenarios/lanseria.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Run persistence
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/meridian/waterfall-engine/api"
	"github.com/meridian/waterfall-engine/config"
	"github.com/meridian/waterfall-engine/group"
	"github.com/meridian/waterfall-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "waterfall.db", "SQLite database path")
	scenarioPath := flag.String("scenario", "", "scenario file to run once and exit")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if *scenarioPath != "" {
		if err := runOnce(store, *scenarioPath); err != nil {
			log.Fatalf("Scenario run failed: %v", err)
		}
		return
	}

	// Create router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// runOnce loads a scenario file, runs the group, and persists the result.
func runOnce(store *sqlite.Store, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	result, err := group.Run(cfg)
	if err != nil {
		return err
	}

	rec := sqlite.RunRecord{
		ID:           uuid.NewString(),
		ScenarioName: cfg.Name,
		Periods:      cfg.Entities[0].Periods,
		CreatedAt:    time.Now().UTC(),
	}
	for _, id := range result.Order {
		rec.EntityIDs = append(rec.EntityIDs, string(id))
	}

	if err := store.SaveRun(context.Background(), rec, result); err != nil {
		return err
	}

	log.Printf("Run %s stored: scenario %s, %d entities, %d periods",
		rec.ID, rec.ScenarioName, len(rec.EntityIDs), rec.Periods)
	return nil
}
