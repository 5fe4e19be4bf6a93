package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/legalwise/internal/authstore"
	"github.com/suPer8Hu/legalwise/internal/cli"
	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyun"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Logger(os.Stderr)

	profile := os.Getenv("LEGALWISE_PROFILE")
	store, err := authstore.Open(cfg, profile)
	if err != nil {
		log.Fatalf("state store: %v", err)
	}

	client := linkyun.New(cfg.APIBaseURL,
		linkyun.WithTimeout(cfg.HTTPTimeout),
		linkyun.WithWorkspaceCode(cfg.WorkspaceCode),
	)
	app := cli.New(cfg, client, store, cli.WithLogger(logger))

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		os.Exit(1)
	}
}
