// Command seed inserts a single discovered-coin/coin-stream pair directly,
// bypassing the new-token websocket stream. Useful for local development
// and for replaying a token address pulled from an incident report.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"tokentracker/config"
	"tokentracker/database"
)

func main() {
	tokenAddress := flag.String("token", "", "token address to seed (required)")
	creatorAddress := flag.String("creator", "", "creator/trader address")
	phaseID := flag.Int("phase", 1, "initial phase id")
	flag.Parse()

	if *tokenAddress == "" {
		log.Fatal("seed: -token is required")
	}

	cfg := config.LoadFromEnv()
	reg, err := database.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("seed: database connection failed: %v", err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := reg.SeedToken(ctx, *tokenAddress, *creatorAddress, *phaseID, time.Now()); err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("✅ seeded %s at phase %d", *tokenAddress, *phaseID)
}
