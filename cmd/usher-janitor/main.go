package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/usher/pkg/config"
	"github.com/platinummonkey/usher/pkg/sso"
)

var runOnce = flag.Bool("run-once", false, "Run one sweep and exit (for testing)")

func main() {
	flag.Parse()

	cfg, err := config.LoadJanitorConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	tickets := sso.NewTicketStore(db)

	// Run once mode (for testing or manual cleanup)
	if *runOnce {
		if err := sweepTickets(tickets, cfg.Janitor.TicketMaxAge); err != nil {
			log.Fatalf("Ticket sweep failed: %v", err)
		}
		log.Println("Sweep completed successfully")
		return
	}

	// Scheduled mode
	c := cron.New()

	_, err = c.AddFunc(cfg.Janitor.Schedule, func() {
		if err := sweepTickets(tickets, cfg.Janitor.TicketMaxAge); err != nil {
			log.Printf("Ticket sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule ticket sweep: %v", err)
	}

	c.Start()
	log.Println("Usher janitor started")
	log.Printf("Ticket sweep schedule: %s", cfg.Janitor.Schedule)
	log.Printf("Ticket max age: %s", cfg.Janitor.TicketMaxAge)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop the cron scheduler and wait for a running sweep to finish
	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Janitor stopped")
}

// sweepTickets deletes SSO setup tickets older than the configured age.
// Ticket URLs are single-use and expire upstream long before this; the
// sweep keeps the table from growing without bound.
func sweepTickets(tickets *sso.TicketStore, maxAge time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := tickets.DeleteExpired(ctx, maxAge)
	if err != nil {
		return err
	}
	log.Printf("Deleted %d expired sso tickets", deleted)
	return nil
}
