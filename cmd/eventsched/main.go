package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"eventsched/internal/catalog"
	"eventsched/internal/config"
	"eventsched/internal/jobs"
	appLog "eventsched/internal/log"
	"eventsched/internal/store"
	"eventsched/internal/web"
)

const version = "0.1.0"

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("eventsched failed", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "eventsched",
		Usage:   "Personal event scheduler with recurring series, conflict checks and backups.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				EnvVars: []string{config.EnvConfigPath},
				Usage:   "Path to config file (.yaml or .toml)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			addCommand(),
			recurCommand(),
			updateCommand(),
			deleteCommand(),
			listCommand(),
			searchCommand(),
			conflictsCommand(),
			upcomingCommand(),
			backupCommand(),
			restoreCommand(),
			exportCommand(),
			importCommand(),
			hashPasswordCommand(),
		},
	}
}

// env is the state every command works against.
type env struct {
	cfg    *config.Config
	loc    *time.Location
	cat    *catalog.Catalog
	closer io.Closer
}

func (e *env) Close() {
	if e.closer == nil {
		return
	}
	if err := e.closer.Close(); err != nil {
		appLog.Error("closing store", err)
	}
}

// openEnv loads the configuration and opens the catalog on the configured
// storage driver.
func openEnv(c *cli.Context) (*env, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var (
		st     store.Store
		closer io.Closer
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := store.OpenSQLite(cfg.Storage.SQLitePath, loc)
		if err != nil {
			return nil, err
		}
		st, closer = s, s
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
		defer cancel()
		s, err := store.OpenPostgres(ctx, cfg.Storage.PostgresDSN, loc)
		if err != nil {
			return nil, err
		}
		st, closer = s, s
	default:
		st = store.NewFileStore(cfg.Storage.DataDir, loc)
	}

	cat, err := catalog.New(st,
		catalog.WithLocation(loc),
		catalog.WithMaxOccurrences(cfg.Recurrence.MaxOccurrences),
		catalog.WithCollisionPolicy(catalog.CollisionPolicy(cfg.Restore.OnCollision)),
	)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	appLog.Debug("effective config",
		"config_path", path,
		"driver", cfg.Storage.Driver,
		"timezone", loc.String(),
		"max_occurrences", cfg.Recurrence.MaxOccurrences,
		"on_collision", cfg.Restore.OnCollision,
	)
	return &env{cfg: cfg, loc: loc, cat: cat, closer: closer}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with scheduled reminders and backups.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()
			if v := c.String("listen"); v != "" {
				e.cfg.Listen = v
			}

			appLog.Info("eventsched starting",
				"version", version,
				"listen", e.cfg.Listen,
				"driver", e.cfg.Storage.Driver,
				"events", len(e.cat.List()),
				"next_id", e.cat.NextID(),
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			sched := jobs.NewScheduler(e.loc)
			if e.cfg.Reminders.Enabled {
				lead := time.Duration(e.cfg.Reminders.MinutesBefore) * time.Minute
				if err := sched.Add("reminders", e.cfg.Reminders.Cron, jobs.NewReminder(e.cat, jobs.LogNotifier{}, lead)); err != nil {
					return err
				}
			}
			if e.cfg.Backup.Enabled {
				if err := sched.Add("backup", e.cfg.Backup.Cron, jobs.NewBackup(e.cat, e.cfg.Backup.Dir)); err != nil {
					return err
				}
			}
			sched.Start()
			defer func() {
				stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
				defer stop()
				sched.Stop(stopCtx)
			}()

			srv := web.NewServer(e.cat, e.cfg, e.loc)
			if err := srv.Serve(ctx, e.cfg.Listen); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			appLog.Info("eventsched exiting")
			return nil
		},
	}
}
