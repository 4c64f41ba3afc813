package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crowdmod/internal/analytics"
	"crowdmod/internal/bot"
	"crowdmod/internal/config"
	"crowdmod/internal/health"
	"crowdmod/internal/immunity"
	"crowdmod/internal/modules/audit"
	"crowdmod/internal/storage"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "crowdmod",
		Usage: "Crowd moderation Discord bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (defaults to $CONFIG_PATH or config.yaml)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Connect to Discord and serve events",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(c.String("config"))
					if err != nil {
						return err
					}
					return serve(cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadStorageConfig(c.String("config"))
					if err != nil {
						return err
					}
					return migrate(cfg)
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func loadStorageConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadStorage()
	}
	return config.LoadStorageFile(path)
}

func migrate(cfg config.Config) error {
	store, err := storage.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer store.Close()
	return store.Migrate()
}

func serve(cfg config.Config) error {
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	journal, err := audit.OpenJournal(cfg.TimeoutWars.LogFile)
	if err != nil {
		logger.Fatal("journal open failed", zap.String("path", cfg.TimeoutWars.LogFile), zap.Error(err))
	}
	auditLogger := audit.NewLogger(journal, logger.Named("audit"))
	analyticsEngine := analytics.New(auditLogger)
	tracker := immunity.NewTracker()

	botSvc, err := bot.New(cfg, logger, store, tracker, auditLogger, analyticsEngine)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started",
		zap.Bool("timeout_wars", cfg.TimeoutWars.Enabled),
		zap.Bool("meme", cfg.Meme.Enabled),
		zap.String("database", cfg.Database.Driver),
	)

	var server *health.Server
	if cfg.Health.Enabled {
		server = health.New(cfg.Health.Addr, store, statsFunc(analyticsEngine, botSvc, tracker), logger.Named("health"))
		server.Start()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close()
	return nil
}

type stats struct {
	Uptime      string           `json:"uptime"`
	UhohCount   int64            `json:"uhoh_count"`
	Immunity    int              `json:"immunity_entries"`
	TimeoutWars analytics.Report `json:"timeout_wars"`
}

func statsFunc(engine *analytics.Service, botSvc *bot.Bot, tracker *immunity.Tracker) health.StatsFunc {
	started := time.Now()
	return func(ctx context.Context) (any, error) {
		report, err := engine.Report(time.Time{}, 10)
		if err != nil {
			return nil, err
		}
		return stats{
			Uptime:      time.Since(started).Round(time.Second).String(),
			UhohCount:   botSvc.UhohCount(),
			Immunity:    tracker.Len(),
			TimeoutWars: report,
		}, nil
	}
}
