package main

import (
	"flag"
	"fmt"
	"os"

	"socialwire/internal/app"
)

func main() {
	defaultServer := envOrDefault("SOCIALWIRE_SERVER", "ws://localhost:8080/socket")
	defaultUser := envOrDefault("SOCIALWIRE_USER", "")

	serverURL := flag.String("server", defaultServer, "WebSocket URL (e.g., ws://localhost:8080/socket)")
	username := flag.String("user", defaultUser, "default username for the login prompt")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL: *serverURL,
		Username:  *username,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
