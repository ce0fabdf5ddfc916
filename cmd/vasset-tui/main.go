package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/config"
	"github.com/handiism/vasset-downloader/internal/download"
	"github.com/handiism/vasset-downloader/internal/http"
	"github.com/handiism/vasset-downloader/internal/progress"
	"github.com/handiism/vasset-downloader/internal/session"
	"github.com/handiism/vasset-downloader/internal/tui"
)

func main() {
	var (
		configFlag = flag.String("config", config.DefaultPath(), "Path to config file")
		logFlag    = flag.String("log", "", "Write logs to this file (the screen belongs to the UI)")
	)
	flag.Parse()

	settings, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	settings.ConfigureLogging()

	if *logFlag != "" {
		f, err := os.OpenFile(*logFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
	} else {
		log.SetLevel(log.PanicLevel)
	}

	store, err := session.Open(settings.SessionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading session: %v\n", err)
		os.Exit(1)
	}
	if !store.IsAuthenticated() {
		fmt.Fprintln(os.Stderr, "Not logged in. Run: vasset login --email <email>")
		os.Exit(1)
	}

	client := http.NewClient(http.Options{
		BaseURL: settings.APIBaseURL,
		Tokens:  store,
		Timeout: settings.Timeout(),
	})
	channel := progress.New(progress.Options{
		URL:     settings.ProgressURL(),
		Tokens:  store,
		Backoff: settings.Backoff(),
	})
	defer channel.Close()

	err = tui.Run(settings, download.Options{
		Parser:    client,
		Submitter: client,
		Channel:   channel,
		Retriever: download.NewFileRetriever(client, settings),
		Quality:   settings.Quality,
		Container: settings.Container,
		SkipCache: settings.SkipCache,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
