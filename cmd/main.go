package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/warungdigital/leadbot-backend/internal/app"
)

func main() {
	// .env is for local development; containers inject real env.
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	addr := ":" + a.Cfg.Port
	a.Log.Info("Starting server", "addr", addr)
	if err := a.Run(addr); err != nil {
		a.Log.Error("Server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
