package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sadeshahansana5-cloud/mediadex/internal/announce"
	"github.com/sadeshahansana5-cloud/mediadex/internal/api"
	"github.com/sadeshahansana5-cloud/mediadex/internal/backfill"
	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/database"
	"github.com/sadeshahansana5-cloud/mediadex/internal/enrich"
	"github.com/sadeshahansana5-cloud/mediadex/internal/flags"
	"github.com/sadeshahansana5-cloud/mediadex/internal/ingest"
	"github.com/sadeshahansana5-cloud/mediadex/internal/logger"
	"github.com/sadeshahansana5-cloud/mediadex/internal/progress"
	"github.com/sadeshahansana5-cloud/mediadex/internal/query"
	"github.com/sadeshahansana5-cloud/mediadex/internal/scheduler"
	"github.com/sadeshahansana5-cloud/mediadex/internal/scheduler/tasks"
	"github.com/sadeshahansana5-cloud/mediadex/internal/source/gateway"
	"github.com/sadeshahansana5-cloud/mediadex/internal/stats"
	"github.com/sadeshahansana5-cloud/mediadex/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Optional .env for local development; environment wins over file values.
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
		Str("logLevel", cfg.Logging.Level).
		Str("database", cfg.Database.Path).
		Msg("MediaDex starting")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()

	fl := flags.New(cfg.Features.MaintenanceMode, cfg.Features.AutoAnnounce)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	store := catalog.NewStore(db.Conn(), log.Logger)
	engine := query.NewEngine(store, log.Logger)

	channels := catalog.ChannelMap{
		SinhalaSub:  cfg.Channels.SinhalaSub,
		Games:       cfg.Channels.Games,
		MovieSeries: cfg.Channels.MovieSeries,
	}

	enricher := enrich.NewClient(cfg.TMDB, log.Logger)
	announcer := announce.New(cfg.Announce, cfg.Channels.Update, enricher, log.Logger)

	var pipelineAnnouncer ingest.Announcer
	if announcer.IsConfigured() {
		pipelineAnnouncer = announcer
	} else {
		log.Warn().Msg("announcer not configured, arrivals will not be posted")
	}

	pipeline := ingest.NewPipeline(store, channels, fl, pipelineAnnouncer, sched, log.Logger)

	src := gateway.New(cfg.Gateway, log.Logger)
	reporter := progress.Multi{
		progress.NewHubReporter(hub),
		progress.NewLogReporter(log.Logger),
	}
	coordinator := backfill.NewCoordinator(src, pipeline, reporter, cfg.Backfill, log.Logger)

	statsSvc := stats.NewService(store, db.Path(), log.Logger)
	if err := tasks.RegisterCatalogStatsTask(sched, statsSvc); err != nil {
		log.Error().Err(err).Msg("failed to register catalog stats task")
	}
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(cfg, hub, store, engine, pipeline, coordinator, statsSvc, fl, log.Logger)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.Start(addr); err != nil {
			log.Info().Err(err).Msg("HTTP server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	log.Info().Msg("MediaDex stopped")
}
