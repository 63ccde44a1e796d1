package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outbound-call-scheduler/internal/chat"
	"outbound-call-scheduler/internal/config"
	"outbound-call-scheduler/internal/correlation"
	"outbound-call-scheduler/internal/recordstore"
	"outbound-call-scheduler/internal/relay"
	"outbound-call-scheduler/internal/tasks"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "call-relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	store := recordstore.NewClient(cfg.StoreBaseURL, cfg.StoreAPIKey, cfg.StoreTimeout)
	taskRepo := tasks.NewRepository(store, cfg.TasksTable, tasks.Options{
		ReclaimAfter: cfg.ReclaimTimeout,
		MaxAttempts:  cfg.MaxClaimAttempts,
	}, logger)
	corrRepo := correlation.NewRepository(store, cfg.CorrelationTable)

	var notifier chat.Notifier = chat.NewLogNotifier(logger)
	if cfg.ChatWebhookURL != "" {
		notifier = chat.NewHTTPNotifier(cfg.ChatWebhookURL, cfg.ChatTimeout)
	}

	server := relay.NewServer(taskRepo, relay.New(corrRepo, notifier, logger), logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("relay listening", "port", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("relay stopped")
}
