package main

import (
	"log"

	"mpesa-gateway/cmd"
	_ "mpesa-gateway/migrations"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
