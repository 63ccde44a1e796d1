package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"outbound-call-scheduler/internal/config"
	"outbound-call-scheduler/internal/correlation"
	"outbound-call-scheduler/internal/executor"
	"outbound-call-scheduler/internal/ratelimit"
	"outbound-call-scheduler/internal/recordstore"
	"outbound-call-scheduler/internal/scheduler"
	"outbound-call-scheduler/internal/tasks"
	"outbound-call-scheduler/internal/telemetry"
	"outbound-call-scheduler/internal/voice"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "call-scheduler")

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
	dialer := voice.NewClient(cfg.VoiceAPIURL, cfg.VoiceAPIKey, cfg.PlaceCallTimeout)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewPlacementLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	exec := executor.New(taskRepo, corrRepo, dialer, limiter, cfg.PlaceCallTimeout, logger)
	sched := scheduler.New(taskRepo, exec, cfg.PollInterval, cfg.MaxConcurrentCalls, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("scheduler started", "poll_interval", cfg.PollInterval.String(), "reclaim_timeout", cfg.ReclaimTimeout.String())
		return sched.Run(gctx)
	})
	g.Go(func() error {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: telemetry.Handler()}
		go func() {
			<-gctx.Done()
			_ = srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler stopped")
}
