package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deskhand/deskhand/internal/activity"
	"github.com/deskhand/deskhand/internal/api"
	"github.com/deskhand/deskhand/internal/catalog"
	"github.com/deskhand/deskhand/internal/chat"
	"github.com/deskhand/deskhand/internal/config"
	"github.com/deskhand/deskhand/internal/database"
	"github.com/deskhand/deskhand/internal/download"
	"github.com/deskhand/deskhand/internal/history"
	"github.com/deskhand/deskhand/internal/hosted"
	"github.com/deskhand/deskhand/internal/inference"
	"github.com/deskhand/deskhand/internal/logger"
	"github.com/deskhand/deskhand/internal/models"
	"github.com/deskhand/deskhand/internal/scheduler"
	"github.com/deskhand/deskhand/internal/scheduler/tasks"
	"github.com/deskhand/deskhand/internal/store"
	"github.com/deskhand/deskhand/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(config.Version)
		return
	}

	// .env is optional, ignore a missing file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting deskhand")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	st := store.New(cfg.Storage.ModelsDir, log.Logger)
	if err := st.EnsureDir(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Storage.ModelsDir).Msg("failed to create model directory")
	}
	if ok, detail := st.CheckHealth(); !ok {
		log.Warn().Str("detail", detail).Msg("model storage is not writable")
	}

	cat := catalog.New()

	hub := websocket.NewHub()
	go hub.Run()

	activityManager := activity.NewManager(hub, log.Logger)
	historyService := history.NewService(db.Conn(), log.Logger)
	downloads := download.New(st, nil, log.Logger)

	inf := inference.NewClient(inference.Config{
		BaseURL:           cfg.Inference.BaseURL,
		Timeout:           cfg.Inference.ProbeTimeout,
		CompletionTimeout: cfg.Inference.CompletionTimeout,
	}, log.Logger)

	hostedClient := hosted.NewClient(hosted.Config{
		BaseURL:     cfg.Hosted.BaseURL,
		APIKey:      cfg.Hosted.APIKey,
		Model:       cfg.Hosted.Model,
		Timeout:     cfg.Hosted.Timeout,
		MaxAttempts: cfg.Hosted.MaxAttempts,
		RetryDelay:  cfg.Hosted.RetryDelay,
	}, log.Logger)
	if !hostedClient.Configured() {
		log.Info().Msg("no hosted API key configured, falling back to local inference only")
	}

	modelsService := models.NewService(cat, st, downloads, historyService, activityManager, inf, hub, log.Logger)
	chatService := chat.NewService(inf, hostedClient, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterStagingSweepTask(sched, st, 0, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register staging sweep task")
	}
	if err := tasks.RegisterHistoryCleanupTask(sched, historyService, cfg.History.Retention()); err != nil {
		log.Fatal().Err(err).Msg("failed to register history cleanup task")
	}
	if err := tasks.RegisterStorageHealthTask(sched, st, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register storage health task")
	}
	sched.Start()

	server := api.NewServer(api.Deps{
		Config:    cfg,
		Logger:    log.Logger,
		Hub:       hub,
		Activity:  activityManager,
		Scheduler: sched,
		Models:    modelsService,
		History:   historyService,
		Chat:      chatService,
	})

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	log.Info().Msg("server stopped")
}
