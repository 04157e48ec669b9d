package main

import (
	"github.com/joho/godotenv"

	"campaign-action-engine/internal/app/server"
	"campaign-action-engine/internal/config"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()
	server.Run(cfg)
}
