package main

import (
	"context"
	"fmt"
	"os"
	"time"

	auction "auction-house/internal/auctionService"
	"auction-house/internal/ledger"
	"auction-house/internal/repository"
	"auction-house/internal/scheduler"
	"auction-house/internal/server"
	"auction-house/utils"
)

func main() {

	accounts, auctionDB := buildStores()

	led := ledger.NewLedger(accounts)
	sched := scheduler.New()
	auctionSvc := auction.NewAuctionService(auctionDB, accounts, led, sched)
	sched.OnFire(auctionSvc.Settle)

	// Backstop sweep for listings whose timer was lost, e.g. scheduled
	// before a restart.
	go sched.RunSweeper(context.Background(), sweepInterval(), auctionSvc.OverdueListings)

	router := server.SetupRouter(auctionSvc)

	port := getPort()
	fmt.Printf("Starting auction server on %s...\n", port)
	if err := router.Run(port); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// buildStores selects the persistence backend: MySQL when MYSQL_DSN is
// set (the DSN must include parseTime=true), in-memory otherwise.
func buildStores() (repository.AccountStore, repository.AuctionDB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		repo := repository.NewMemoryRepo()
		return repo, repo
	}

	repo, err := repository.OpenMySQL(dsn)
	if err != nil {
		utils.Fatal("failed to connect to MySQL", map[string]any{"error": err.Error()})
	}
	if err := repo.Migrate(); err != nil {
		utils.Fatal("failed to migrate MySQL schema", map[string]any{"error": err.Error()})
	}
	return repo, repo
}

// sweepInterval returns the overdue-listing sweep interval from env or
// defaults to 30s
func sweepInterval() time.Duration {
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

// getPort returns the server port from env or defaults to ":8080"
func getPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return fmt.Sprintf(":%s", p)
	}
	return ":8080"
}
