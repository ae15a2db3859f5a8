package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cordum/playground/core/controlplane/api"
	"github.com/cordum/playground/core/infra/buildinfo"
	"github.com/cordum/playground/core/infra/config"
)

func main() {
	buildinfo.Log("playground-api")
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := api.Run(ctx, cfg); err != nil {
		log.Fatalf("playground api error: %v", err)
	}
}
