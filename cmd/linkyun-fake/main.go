package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/legalwise/internal/config"
	"github.com/suPer8Hu/legalwise/internal/linkyuntest"
	"github.com/suPer8Hu/legalwise/internal/store/rabbitmq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.LoadFake()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Logger(os.Stderr)

	mode, err := linkyuntest.ParseReplyMode(cfg.ReplyMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	gdb, err := linkyuntest.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	var queue linkyuntest.JobQueue
	if cfg.RabbitURL != "" {
		q, err := rabbitmq.Dial(cfg.RabbitURL, cfg.RabbitQueue, logger)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		queue = q
		logger.Info("reply jobs on rabbitmq", "queue", cfg.RabbitQueue)
	}

	gin.SetMode(gin.ReleaseMode)
	backend, err := linkyuntest.New(ctx, linkyuntest.Options{
		DB:                gdb,
		JWTSecret:         cfg.JWTSecret,
		ReplyMode:         mode,
		ReplyDelay:        cfg.ReplyDelay,
		AgentCodes:        cfg.AgentCodes,
		InvitationCode:    cfg.InvitationCode,
		WorkspaceCode:     cfg.WorkspaceCode,
		WorkspaceJoinCode: cfg.WorkspaceJoinCode,
		Queue:             queue,
		Concurrency:       cfg.WorkerConcurrency,
		Logger:            logger,
		AccessLog:         os.Stdout,
	})
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	defer backend.Close()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := backend.Run(ctx); err != nil {
			logger.Error("worker stopped", "error", err)
			stop()
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("linkyun fake listening", "addr", cfg.Addr, "reply_mode", mode, "reply_delay", cfg.ReplyDelay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("listen: %v", err)
	}
	<-workerDone
}
