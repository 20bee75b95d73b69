package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/JonMunkholm/policyingest/internal/core/tables" // Register all entities
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
