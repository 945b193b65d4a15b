// Package main runs the Campfire server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/campfirelabs/campfire/internal/app"
)

func main() {
	log.SetPrefix("[CAMPFIRE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
