package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/revivelabs/photorestore/internal/config"
	"github.com/revivelabs/photorestore/internal/stub"
	"github.com/revivelabs/photorestore/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := stub.NewServer(cfg, logr)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("stub backend stopped", "err", err)
	}
}
