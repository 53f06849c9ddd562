package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"

	"github.com/mailvault/mailvault/internal/config"
	"github.com/mailvault/mailvault/internal/mailbox"
	"github.com/mailvault/mailvault/internal/pipeline"
	"github.com/mailvault/mailvault/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "mailvault",
		Usage: "archive unread mail into a local document store",
		Description: `mailvault opens an IMAP session, retrieves every unread message,
extracts a normalized record from each and upserts it into a local
document store, then marks the message as read. Unread state on the
server is the durable work queue: anything that fails to store stays
unread and is picked up on the next run.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "load configuration from `FILE` instead of .env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "execute a single pipeline run and exit",
				Action: runOnce,
			},
			{
				Name:   "watch",
				Usage:  "run the pipeline on an interval until interrupted",
				Action: runWatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("mailvault failed", "error", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *pipeline.Pipeline, error) {
	var cfg *config.Config
	var err error
	if envFile := c.String("env-file"); envFile != "" {
		cfg, err = config.Load(envFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	pipe := pipeline.New(pipeline.Config{
		OpenSession: func(ctx context.Context) (pipeline.Session, error) {
			sess := mailbox.NewSession(mailbox.Config{
				Server:      cfg.IMAPServer,
				Email:       cfg.IMAPEmail,
				Password:    cfg.IMAPPassword,
				Mailbox:     cfg.IMAPMailbox,
				TLS:         cfg.IMAPTLS,
				DialTimeout: cfg.IMAPDialTimeout,
			}, logger)
			if err := sess.Connect(ctx); err != nil {
				return nil, err
			}
			return sess, nil
		},
		OpenSink: func(ctx context.Context) (pipeline.Sink, error) {
			return store.Open(ctx, store.Config{
				Path:       cfg.StorePath,
				Collection: cfg.StoreCollection,
				Timeout:    cfg.StoreTimeout,
			}, logger)
		},
		Logger: logger,
	})

	return cfg, pipe, nil
}

func runOnce(c *cli.Context) error {
	_, pipe, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := pipe.Run(ctx)
	if err != nil {
		return err
	}

	slog.Info("done", "summary", summary.String())
	return nil
}

func runWatch(c *cli.Context) error {
	cfg, pipe, err := setup(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("watching mailbox", "interval", cfg.PollInterval)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		// A failed run is logged, not fatal: the next tick starts over from
		// whatever is still unread.
		if summary, err := pipe.Run(ctx); err != nil {
			slog.Error("run aborted", "error", err)
		} else {
			slog.Info("run finished", "summary", summary.String())
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		}
	}
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
