package download

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/vasset-downloader/internal/model"
)

// BatchResult is the outcome of one URL of a batch.
type BatchResult struct {
	URL      string
	Snapshot Snapshot

	// Err is the reason the URL produced no file, nil on success.
	Err error
}

// Batch downloads several URLs, each through its own Controller. All
// controllers share the parser, submitter, progress channel and retriever
// of Options, so one push connection serves the whole batch.
type Batch struct {
	Options Options

	// Limit bounds how many URLs are in flight. Values below 1 mean 1.
	Limit int

	Kind model.DownloadKind

	// OnUpdate receives the updates of every controller, tagged with the
	// URL's index. Calls for different indexes may be concurrent.
	OnUpdate func(index int, u Update)

	completed int32
	failed    int32
}

// Run processes urls and returns one result per URL, in input order.
// A failing URL does not stop the others; cancelling ctx stops them all.
func (b *Batch) Run(ctx context.Context, urls []string) []BatchResult {
	results := make([]BatchResult, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.Limit, 1))

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			results[i] = b.runOne(ctx, i, url)
			if results[i].Err != nil {
				atomic.AddInt32(&b.failed, 1)
			} else {
				atomic.AddInt32(&b.completed, 1)
			}
			return nil
		})
	}
	g.Wait()

	log.WithFields(log.Fields{
		"completed": atomic.LoadInt32(&b.completed),
		"failed":    atomic.LoadInt32(&b.failed),
	}).Debug("Batch finished")
	return results
}

// Progress returns how many URLs have finished successfully and with an
// error so far.
func (b *Batch) Progress() (completed, failed int) {
	return int(atomic.LoadInt32(&b.completed)), int(atomic.LoadInt32(&b.failed))
}

func (b *Batch) runOne(ctx context.Context, index int, url string) BatchResult {
	opts := b.Options
	opts.OnUpdate = nil
	if b.OnUpdate != nil {
		opts.OnUpdate = func(u Update) { b.OnUpdate(index, u) }
	}

	ctrl := NewController(opts)
	defer ctrl.Close()

	res := BatchResult{URL: url}
	kind := b.Kind
	if kind == "" {
		kind = model.KindVideo
	}

	err := ctrl.Parse(ctx, url)
	if err == nil {
		err = ctrl.Submit(ctx, kind, "")
	}
	if err == nil {
		res.Snapshot, err = ctrl.Wait(ctx)
	} else {
		res.Snapshot = ctrl.Snapshot()
	}

	switch {
	case err != nil:
		res.Err = err
	case res.Snapshot.State == model.StateError:
		res.Err = res.Snapshot.Err
	case res.Snapshot.RetrievalErr != nil:
		res.Err = res.Snapshot.RetrievalErr
	case res.Snapshot.FilePath == "":
		res.Err = fmt.Errorf("download of %s ended in state %s", url, res.Snapshot.State)
	}
	return res
}
