package main

import (
	"log"

	"tokentracker/app"
	"tokentracker/config"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()

	// Create and start the tracker
	core := app.New(cfg)
	if err := core.Start(); err != nil {
		log.Fatal(err)
	}
}
