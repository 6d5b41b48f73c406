package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedrelay/feedrelay/app/api"
	"github.com/feedrelay/feedrelay/app/cfg"
	"github.com/feedrelay/feedrelay/app/database"
	"github.com/feedrelay/feedrelay/app/delivery"
	"github.com/feedrelay/feedrelay/app/lock"
	"github.com/feedrelay/feedrelay/app/schedules"
	"github.com/feedrelay/feedrelay/app/scheduling"
	"github.com/feedrelay/feedrelay/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting FeedRelay", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "migration_version", version, "dirty", dirty)

	scheduleOverrides, err := schedules.Load(appCfg.SchedulesFile)
	if err != nil {
		slog.Error("Failed to load schedule overrides", "file", appCfg.SchedulesFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Schedule overrides loaded", "count", len(scheduleOverrides))

	lockTTL := time.Duration(appCfg.LockTTLMinutes) * time.Minute
	var processingLock lock.ProcessingLock
	if appCfg.RedisAddr != "" {
		redisLock, err := lock.NewRedisLock(appCfg.RedisAddr, lockTTL)
		if err != nil {
			slog.Error("Failed to connect to lock store", "addr", appCfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer redisLock.Close()
		processingLock = redisLock
		slog.Info("Using distributed processing locks", "addr", appCfg.RedisAddr)
	} else {
		processingLock = lock.NewMemoryLock(lockTTL)
		slog.Info("Using in-memory processing locks, single node only")
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}

	var benefits scheduling.BenefitsLookup
	if appCfg.BenefitsURL != "" {
		benefits = scheduling.NewHTTPBenefitsLookup(appCfg.BenefitsURL, httpClient)
	} else {
		benefits = scheduling.NewStaticBenefitsLookup(appCfg.VipOwnerIDs)
	}

	rateResolver := scheduling.NewRateResolver(benefits, scheduleOverrides,
		appCfg.DefaultRefreshMinutes*60, appCfg.VipRefreshMinutes*60)

	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)
	dispatcher := delivery.NewWebhookDispatcher(httpClient, appCfg.UserAgent)

	slog.Info("Starting scheduler", "workers", appCfg.WorkerCount, "tick_interval_seconds", appCfg.TickInterval)
	scheduler := tasks.NewScheduler(feedRepo, articleRepo, processingLock, rateResolver,
		dispatcher, httpClient)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(feedRepo, articleRepo)
	server := api.NewServer(apiHandler)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
