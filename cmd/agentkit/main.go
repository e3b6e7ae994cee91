package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ggonzalez94/agentkit-go/internal/app"
)

func main() {
	// A missing .env is fine; real environment variables still win.
	_ = godotenv.Load()
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
