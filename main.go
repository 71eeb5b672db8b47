package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbis/livesvc/livesvc"
	"github.com/orbis/livesvc/livesvc/database"
	"github.com/orbis/livesvc/livesvc/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler()))

	path := flag.String("config", "config.toml", "path to config")
	backup := flag.Bool("backup", false, "export the current season to the archive and exit")
	flag.Parse()

	cfg, err := livesvc.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.SetDefault(slog.New(logger.NewHandlerWithOptions(os.Stdout, cfg.Log.Level, cfg.Log.Color)))

	slog.Info("Starting livesvc",
		slog.String("type", "sys"),
		slog.String("version", version),
		slog.String("commit", commit),
		slog.String("server", cfg.Server.ID))

	dbStartTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Database setup failed",
			slog.String("type", "db"),
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	// An unreachable database is not fatal; the schema is created once the
	// probe first sees it online.
	schemaReady := false
	if database.Online(db) {
		if err = db.InitializeSchema(ctx); err != nil {
			slog.Error("Failed to initialize database schema",
				slog.String("type", "db"),
				slog.Any("error", err))
			os.Exit(-1)
		}
		schemaReady = true
	}

	e := livesvc.New(*cfg, version, commit)
	if err = e.Setup(ctx, db); err != nil {
		slog.Error("Failed to set up engine", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(-1)
	}

	if *backup {
		runBackup(e)
		return
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !schemaReady {
		go awaitSchema(runCtx, db)
	}
	e.Start(runCtx)

	slog.Info("livesvc is running. Press CTRL-C to exit.", slog.String("type", "sys"))
	<-runCtx.Done()
	slog.Info("Shutting down...", slog.String("type", "sys"))

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	e.Close(closeCtx)
}

func awaitSchema(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !database.Online(db) {
				continue
			}
			if err := db.InitializeSchema(ctx); err != nil {
				slog.Error("Failed to initialize database schema",
					slog.String("type", "db"),
					slog.Any("error", err))
				continue
			}
			slog.Info("Database schema initialized", slog.String("type", "db"))
			return
		}
	}
}

func runBackup(e *livesvc.Engine) {
	if e.Archive == nil {
		slog.Error("Archive is not enabled", slog.String("type", "sys"))
		os.Exit(-1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	key, err := e.Archive.BackupSeason(ctx, e.Runtime.ServerID(), e.Runtime.Season())
	if err != nil {
		slog.Error("Season backup failed", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Season backup written", slog.String("type", "sys"), slog.String("key", key))
}
