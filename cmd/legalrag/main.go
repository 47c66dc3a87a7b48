package main

import (
	"github.com/joho/godotenv"

	"legalrag/internal/cli"
)

func main() {
	// A .env file is optional; it usually carries the embedding API key.
	_ = godotenv.Load()
	cli.Execute()
}
