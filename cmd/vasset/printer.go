package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/handiism/vasset-downloader/internal/download"
	"github.com/handiism/vasset-downloader/internal/model"
)

// progressEvery is how often a plain progress line may be printed per task.
const progressEvery = time.Second

// printer writes controller updates as lines. Plain progress updates are
// throttled per label so fast tasks do not flood the terminal.
type printer struct {
	out     io.Writer
	verbose bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newPrinter(out io.Writer, verbose bool) *printer {
	return &printer{
		out:      out,
		verbose:  verbose,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *printer) allow(label string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[label]
	if !ok {
		l = rate.NewLimiter(rate.Every(progressEvery), 1)
		p.limiters[label] = l
	}
	return l.Allow()
}

func (p *printer) update(label string, u download.Update) {
	if u.Message == "" {
		if u.Snapshot.State == model.StateDownloading && u.Snapshot.Task != nil && p.allow(label) {
			p.line(label, "  ", progressLine(u.Snapshot.Progress))
		}
		return
	}
	if u.Level == download.LevelVerbose && !p.verbose {
		return
	}
	p.line(label, prefix(u.Level), u.Message)
}

// bytes returns a transfer callback printing throttled byte counts.
func (p *printer) bytes(label string) func(written, total int64) {
	return func(written, total int64) {
		if written != total && !p.allow(label) {
			return
		}
		line := model.FormatFileSize(written)
		if total > 0 {
			line += " / " + model.FormatFileSize(total)
		}
		p.line(label, "  ", line)
	}
}

func (p *printer) line(label, prefix, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if label != "" {
		fmt.Fprintf(p.out, "%s[%s] %s\n", prefix, label, msg)
		return
	}
	fmt.Fprintf(p.out, "%s%s\n", prefix, msg)
}

func prefix(level download.ProgressLevel) string {
	switch level {
	case download.LevelError:
		return "✗ "
	case download.LevelWarning:
		return "! "
	case download.LevelSuccess:
		return "✓ "
	case download.LevelInfo:
		return "› "
	}
	return "  "
}

func progressLine(pr download.Progress) string {
	parts := []string{fmt.Sprintf("%5.1f%%", pr.Percent)}
	if pr.TotalBytes > 0 {
		parts = append(parts, model.FormatFileSize(pr.DownloadedBytes)+" / "+model.FormatFileSize(pr.TotalBytes))
	}
	if pr.Speed != "" {
		parts = append(parts, pr.Speed)
	}
	if pr.ETA != "" {
		parts = append(parts, "ETA "+pr.ETA)
	}
	return strings.Join(parts, " | ")
}
