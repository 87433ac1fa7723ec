package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"symscope/internal/apperr"
	"symscope/internal/config"
	"symscope/internal/lsp"
	"symscope/internal/pkgmgr"
	"symscope/internal/query"
	"symscope/internal/server"
)

var Version = "0.1.0"

// closeTimeout bounds analyzer shutdown after a one-shot command.
const closeTimeout = 5 * time.Second

// env is built once in Before and shared by every command.
type env struct {
	cfg      *config.Config
	manager  *pkgmgr.Manager
	queries  *query.Dispatcher
	sessions *lsp.Pool
}

var deps *env

func main() {
	app := &cli.App{
		Name:                   "symscope",
		Usage:                  "Answer questions about code symbols from sources and language analyzers",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default $SYMSCOPE_HOME/config.toml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: trace, debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "analyzer",
				Usage: "Use this analyzer for every file instead of picking by language",
			},
		},
		Before: setup,
		After: func(c *cli.Context) error {
			if deps == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := deps.sessions.Close(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to close analyzer sessions")
			}
			return nil
		},
		Commands: commands(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if name := c.String("analyzer"); name != "" {
		cfg.Analyzer.Name = name
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	m, err := cfg.Manager()
	if err != nil {
		return err
	}
	deps = &env{
		cfg:     cfg,
		manager: m,
		queries: query.New(cfg.QueryOptions()),
		sessions: lsp.NewPool(lsp.ExecResolver(m, cfg.Analyzer.Name, cfg.Analyzer.Binary), lsp.Options{
			ClientName:    "symscope",
			ClientVersion: Version,
		}),
	}
	log.Debug().Str("packages", m.PackagesDir()).Str("analyzer", cfg.Analyzer.Name).Msg("configured")
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

// fail converts err into a CLI exit error labelled with its kind.
func fail(err error) error {
	return cli.Exit(fmt.Sprintf("%s: %v", apperr.KindOf(err), err), 1)
}

func serve(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()
	srv := server.New(deps.queries, deps.sessions, Version)
	return srv.Run(ctx)
}
