package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/handiism/vasset-downloader/internal/config"
	"github.com/handiism/vasset-downloader/internal/http"
	"github.com/handiism/vasset-downloader/internal/progress"
	"github.com/handiism/vasset-downloader/internal/session"
)

func main() {
	app := &cli.App{
		Name:  "vasset",
		Usage: "download video and audio through the vasset backend",
		Description: "Parses media URLs, submits server-side downloads, follows their " +
			"progress over a websocket and saves the finished files locally. " +
			"For interactive mode, use vasset-tui.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the config file",
				Value:   config.DefaultPath(),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "api",
				Usage: "backend base URL (overrides config)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "show verbose output and debug logs",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			parseCommand(),
			downloadCommand(),
			fetchCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nInterrupted, cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: settings, the session and an API client.
type env struct {
	settings *config.Settings
	store    *session.Store
	client   *http.Client
}

func withEnv(fn func(e *env, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		settings, err := config.Load(c.String("config"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if out := c.String("output"); out != "" {
			settings.DownloadsPath = out
		}
		if api := c.String("api"); api != "" {
			settings.APIBaseURL = api
		}
		if c.Bool("verbose") {
			settings.LogLevel = "debug"
		}
		settings.ConfigureLogging()

		store, err := session.Open(settings.SessionPath)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}

		client := http.NewClient(http.Options{
			BaseURL: settings.APIBaseURL,
			Tokens:  store,
			Timeout: settings.Timeout(),
		})
		log.WithField("api", settings.APIBaseURL).Debug("Using backend")

		return fn(&env{settings: settings, store: store, client: client}, c)
	}
}

func (e *env) channel() *progress.Channel {
	return progress.New(progress.Options{
		URL:     e.settings.ProgressURL(),
		Tokens:  e.store,
		Backoff: e.settings.Backoff(),
	})
}

func (e *env) requireLogin() error {
	if !e.store.IsAuthenticated() {
		return session.ErrAuthRequired
	}
	return nil
}
