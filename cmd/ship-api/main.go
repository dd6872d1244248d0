package main

import (
	"context"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real deployments pass env vars directly.
	_ = godotenv.Load()

	app := mustBootstrapShipAPI()
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		panic(err)
	}
}
