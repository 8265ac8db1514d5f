package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"socialwire/internal/app"
)

func main() {
	configPath := flag.String("config", getEnv("SOCIALWIRE_CONFIG", "socialwire.yaml"), "path to the YAML config file")
	addr := flag.String("addr", "", "override listen address")
	redisURL := flag.String("redis", "", "override redis URL for the presence store")
	db := flag.String("db", "", "override sqlite database path")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *redisURL != "" {
		cfg.Presence.RedisURL = *redisURL
	}
	if *db != "" {
		cfg.Database.Path = *db
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
	if err := handle.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
