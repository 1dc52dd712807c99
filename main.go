package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/tutorbot/internal/achievement"
	"github.com/example/tutorbot/internal/ai"
	"github.com/example/tutorbot/internal/bot"
	"github.com/example/tutorbot/internal/config"
	"github.com/example/tutorbot/internal/database"
	"github.com/example/tutorbot/internal/excel"
	"github.com/example/tutorbot/internal/lesson"
	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/internal/scheduler"
	"github.com/example/tutorbot/internal/spaced_repetition"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger mode is part of the config, so fall back to the default one
		log, _ := logger.New("dev")
		log.Fatal("Failed to load configuration", "error", err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	planner := spaced_repetition.NewPlanner()
	store := database.NewStore(db, achievement.New(), planner,
		database.WithLocation(cfg.Timezone),
		database.WithLogger(log.With("component", "store")),
	)
	defer store.Close()

	if cfg.TopicsFile != "" {
		importCfg := excel.DefaultImportConfig()
		importCfg.FilePath = cfg.TopicsFile
		res, err := excel.ImportTopics(ctx, store, importCfg)
		if err != nil {
			log.Fatal("Failed to import topics", "file", cfg.TopicsFile, "error", err)
		}
		for _, msg := range res.Errors {
			log.Warn("Topic import problem", "detail", msg)
		}
		log.Info("Topics imported", "processed", res.TotalProcessed, "created", res.Created, "skipped", res.Skipped)
	}

	api, err := bot.Dial(cfg.TelegramToken, log.With("component", "gateway"))
	if err != nil {
		log.Fatal("Failed to create bot", "error", err)
	}
	gateway := bot.NewGateway(api, log.With("component", "gateway"))
	provider, err := ai.New(cfg.OpenAIKey,
		ai.WithModel(cfg.OpenAIModel),
		ai.WithLogger(log.With("component", "provider")),
	)
	if err != nil {
		log.Fatal("Failed to create lesson provider", "error", err)
	}
	svc := lesson.NewService(store, provider, gateway, planner, log.With("component", "lesson"))

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(store, svc, scheduler.Config{
			Location:        cfg.Timezone,
			DispatchTimeout: cfg.DispatchTimeout,
			Workers:         cfg.DispatchWorkers,
		}, log.With("component", "scheduler"))
		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", "error", err)
		}
	} else {
		log.Info("Scheduler disabled")
	}

	log.Info("Bot started. Press Ctrl+C to stop.", "timezone", cfg.Timezone.String())
	router := bot.NewRouter(api, gateway, svc, log.With("component", "router"))
	router.Run(ctx)

	log.Info("Shutting down")
	if sched != nil {
		sched.Stop()
	}
	log.Info("Bot stopped successfully")
}
