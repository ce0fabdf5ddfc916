package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/handiism/vasset-downloader/internal/audio"
	"github.com/handiism/vasset-downloader/internal/download"
	ioutils "github.com/handiism/vasset-downloader/internal/io"
	"github.com/handiism/vasset-downloader/internal/model"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Usage:    "account email",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Usage:    "account password",
				EnvVars:  []string{"VASSET_PASSWORD"},
				Required: true,
			},
		},
		Action: withEnv(func(e *env, c *cli.Context) error {
			res, err := e.client.Login(c.Context, c.String("email"), c.String("password"))
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			user := res.User
			if err := e.store.SetUser(&user); err != nil {
				return fmt.Errorf("saving session: %w", err)
			}
			name := user.Nickname
			if name == "" {
				name = user.Email
			}
			fmt.Printf("✓ Logged in as %s\n", name)
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the session and forget the stored token",
		Action: withEnv(func(e *env, c *cli.Context) error {
			if err := e.client.Logout(c.Context); err != nil {
				fmt.Fprintf(os.Stderr, "! Backend logout failed: %v\n", err)
			}
			fmt.Println("✓ Logged out")
			return nil
		}),
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "show the media information and formats of a URL",
		ArgsUsage: "URL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the descriptor as JSON",
			},
		},
		Action: withEnv(func(e *env, c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("parse takes exactly one URL", 2)
			}
			if err := e.requireLogin(); err != nil {
				return err
			}
			media, err := e.client.Parse(c.Context, c.Args().First(), e.settings.SkipCache)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(media, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling descriptor to JSON: %w", err)
				}
				fmt.Printf("%s\n", data)
				return nil
			}
			printMedia(media)
			return nil
		}),
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"dl", "get"},
		Usage:     "download one or more URLs",
		ArgsUsage: "URL [URL...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "audio",
				Aliases: []string{"a"},
				Usage:   "download audio only",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "format id to download (single URL only, see parse)",
			},
			&cli.StringFlag{
				Name:  "playlist",
				Usage: "write an .m3u or .pls playlist of the saved files to this path",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "parallel downloads (overrides config)",
			},
		},
		Action: withEnv(func(e *env, c *cli.Context) error {
			urls := c.Args().Slice()
			if len(urls) == 0 {
				return cli.Exit("download needs at least one URL", 2)
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			kind := model.KindVideo
			if c.Bool("audio") {
				kind = model.KindAudio
			}

			channel := e.channel()
			defer channel.Close()

			opts := download.Options{
				Parser:    e.client,
				Submitter: e.client,
				Channel:   channel,
				Retriever: download.NewFileRetriever(e.client, e.settings),
				Quality:   e.settings.Quality,
				Container: e.settings.Container,
				SkipCache: e.settings.SkipCache,
			}
			pr := newPrinter(os.Stdout, c.Bool("verbose"))

			fmt.Println("Vasset Downloader")
			fmt.Println(strings.Repeat("━", 40))

			var results []download.BatchResult
			if formatID := c.String("format"); formatID != "" {
				if len(urls) != 1 {
					return cli.Exit("--format needs exactly one URL", 2)
				}
				results = []download.BatchResult{downloadFormat(c, opts, pr, urls[0], kind, formatID)}
			} else {
				limit := e.settings.MaxConcurrentDownloads
				if jobs := c.Int("jobs"); jobs > 0 {
					limit = jobs
				}
				b := &download.Batch{
					Options: opts,
					Limit:   limit,
					Kind:    kind,
					OnUpdate: func(i int, u download.Update) {
						pr.update(label(i, len(urls)), u)
					},
				}
				results = b.Run(c.Context, urls)
			}

			if c.Context.Err() != nil {
				return c.Context.Err()
			}
			return summarize(results, c.String("playlist"))
		}),
	}
}

// downloadFormat runs a single URL with an explicit format id.
func downloadFormat(c *cli.Context, opts download.Options, pr *printer, url string, kind model.DownloadKind, formatID string) download.BatchResult {
	opts.OnUpdate = func(u download.Update) { pr.update("", u) }
	ctrl := download.NewController(opts)
	defer ctrl.Close()

	res := download.BatchResult{URL: url}
	err := ctrl.Parse(c.Context, url)
	if err == nil {
		err = ctrl.Submit(c.Context, kind, formatID)
	}
	if err == nil {
		res.Snapshot, err = ctrl.Wait(c.Context)
	}
	switch {
	case err != nil:
		res.Err = err
	case res.Snapshot.State == model.StateError:
		res.Err = res.Snapshot.Err
	case res.Snapshot.RetrievalErr != nil:
		res.Err = res.Snapshot.RetrievalErr
	}
	return res
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "save the file of a finished download by its history id",
		ArgsUsage: "HISTORY_ID",
		Action: withEnv(func(e *env, c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("fetch takes exactly one history id", 2)
			}
			id, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil || id <= 0 {
				return cli.Exit(fmt.Sprintf("invalid history id %q", c.Args().First()), 2)
			}
			if err := e.requireLogin(); err != nil {
				return err
			}

			pr := newPrinter(os.Stdout, c.Bool("verbose"))
			retriever := download.NewFileRetriever(e.client, e.settings)
			retriever.OnProgress = pr.bytes(fmt.Sprintf("history %d", id))

			path, err := retriever.Retrieve(c.Context, model.DownloadTask{HistoryID: id}, nil)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Saved %s\n", path)
			return nil
		}),
	}
}

func label(i, total int) string {
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf("%d/%d", i+1, total)
}

func printMedia(m *model.MediaDescriptor) {
	fmt.Println(m.Title)
	details := []string{}
	for _, d := range []string{m.Author, m.Platform} {
		if d != "" {
			details = append(details, d)
		}
	}
	if m.Duration > 0 {
		details = append(details, model.FormatDuration(m.Duration))
	}
	fmt.Println(strings.Join(details, " · "))
	fmt.Println()

	if formats := m.VideoFormats(); len(formats) > 0 {
		fmt.Println("Video:")
		for _, f := range formats {
			fmt.Printf("  %-6s %-10s %-5s %-6s %s\n", f.FormatID, f.Resolution(), f.Extension,
				model.CodecDisplayName(f.VideoCodec), model.FormatFileSize(f.FileSize))
		}
	}
	if formats := m.AudioFormats(); len(formats) > 0 {
		fmt.Println("Audio:")
		for _, f := range formats {
			fmt.Printf("  %-6s %-10s %-5s %-6s %s\n", f.FormatID, model.FormatBitrate(f.AudioBitrate), f.Extension,
				model.CodecDisplayName(f.AudioCodec), model.FormatFileSize(f.FileSize))
		}
	}
}

// summarize prints the outcome of every URL, writes the playlist and
// returns an error if anything failed.
func summarize(results []download.BatchResult, playlistPath string) error {
	fmt.Println()
	fmt.Println(strings.Repeat("━", 40))

	var entries []audio.PlaylistEntry
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", res.URL, res.Err)
			continue
		}
		entries = append(entries, audio.PlaylistEntry{Path: res.Snapshot.FilePath, Media: res.Snapshot.Media})
		fmt.Printf("✓ %s\n", res.Snapshot.FilePath)
	}

	if playlistPath != "" && len(entries) > 0 {
		creator := audio.NewPlaylistCreator(audio.PlaylistFormatFromPath(playlistPath), true)
		content := creator.CreatePlaylist(filepath.Dir(playlistPath), entries)
		if err := ioutils.WriteFile(playlistPath, []byte(content)); err != nil {
			return fmt.Errorf("writing playlist: %w", err)
		}
		fmt.Printf("✓ Playlist %s\n", playlistPath)
	}

	fmt.Printf("Complete! %d/%d downloaded\n", len(results)-failed, len(results))
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return nil
}
