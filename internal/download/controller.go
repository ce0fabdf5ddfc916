package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/model"
	"github.com/handiism/vasset-downloader/internal/progress"
)

var (
	ErrEmptyURL      = errors.New("download: empty URL")
	ErrBusy          = errors.New("download: another operation is in progress")
	ErrNoMedia       = errors.New("download: nothing parsed yet")
	ErrUnknownFormat = errors.New("download: unknown format")
	ErrNoHistory     = errors.New("download: no finished download to retrieve")

	// ErrReset is returned by a Parse or Submit whose result was discarded
	// because Reset ran while it was in flight.
	ErrReset = errors.New("download: reset while in flight")
)

// ProgressLevel indicates the severity/type of an update message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// Parser resolves a URL into a media descriptor.
type Parser interface {
	Parse(ctx context.Context, url string, skipCache bool) (*model.MediaDescriptor, error)
}

// Submitter starts a server-side download.
type Submitter interface {
	SubmitDownload(ctx context.Context, req model.DownloadRequest) (*model.DownloadTicket, error)
}

// Channel is the progress subscription registry. *progress.Channel
// implements it.
type Channel interface {
	Subscribe(taskID string, h progress.Handler) error
	Unsubscribe(taskID string)
}

// Retriever transfers the finished file of a task to local storage and
// returns its path.
type Retriever interface {
	Retrieve(ctx context.Context, task model.DownloadTask, media *model.MediaDescriptor) (string, error)
}

// Progress is the latest progress reported for the current task.
type Progress struct {
	Percent         float64
	Speed           string
	ETA             string
	DownloadedBytes int64
	TotalBytes      int64
}

// Snapshot is a consistent copy of the controller's state.
type Snapshot struct {
	State model.LifecycleState
	URL   string
	Media *model.MediaDescriptor

	// Task is nil until a submission succeeds.
	Task     *model.DownloadTask
	Progress Progress

	// Err explains the error state.
	Err error

	// Retrieving is true while the finished file is being transferred.
	// FilePath or RetrievalErr is set once it ends. A completion without a
	// history id leaves a *model.CorrelationError in RetrievalErr.
	Retrieving   bool
	FilePath     string
	RetrievalErr error
}

// Update is delivered to the OnUpdate callback after every change.
// Message is empty for plain progress updates.
type Update struct {
	Snapshot Snapshot
	Message  string
	Level    ProgressLevel
}

// Options configures a Controller.
type Options struct {
	Parser    Parser
	Submitter Submitter
	Channel   Channel
	Retriever Retriever

	// Quality and Container are sent with every submission.
	// They default to "best" and "mp4".
	Quality   string
	Container string
	SkipCache bool

	// OnUpdate receives updates in order, one at a time. It may call back
	// into the Controller.
	OnUpdate func(Update)
}

// Controller drives one parse-to-download cycle at a time:
//
//	idle → parsing → parsed → downloading → completed | error
//
// Reset returns to idle from any state. Results of operations that were
// in flight during a Reset are discarded.
type Controller struct {
	parser    Parser
	submitter Submitter
	channel   Channel
	retriever Retriever
	quality   string
	container string
	skipCache bool
	onUpdate  func(Update)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        model.LifecycleState
	url          string
	media        *model.MediaDescriptor
	task         *model.DownloadTask
	progress     Progress
	err          error
	filePath     string
	retrievalErr error
	retrieving   int

	// cycle changes on every Parse, Submit and Reset.
	cycle    uint64
	cancelOp context.CancelFunc
	changed  chan struct{}

	pending  []Update
	flushing bool
}

// NewController creates an idle Controller.
func NewController(opts Options) *Controller {
	quality := opts.Quality
	if quality == "" {
		quality = "best"
	}
	container := opts.Container
	if container == "" {
		container = "mp4"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		parser:    opts.Parser,
		submitter: opts.Submitter,
		channel:   opts.Channel,
		retriever: opts.Retriever,
		quality:   quality,
		container: container,
		skipCache: opts.SkipCache,
		onUpdate:  opts.OnUpdate,
		ctx:       ctx,
		cancel:    cancel,
		state:     model.StateIdle,
		changed:   make(chan struct{}),
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the lifecycle state.
func (c *Controller) State() model.LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Parse resolves rawURL and stores the resulting descriptor.
//
// It is accepted from idle, parsed, completed and error, and returns
// ErrBusy while parsing or downloading. A failed parse leaves the
// controller in the error state; it is never retried.
func (c *Controller) Parse(ctx context.Context, rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ErrEmptyURL
	}

	c.mu.Lock()
	if c.state.IsBusy() {
		c.mu.Unlock()
		return ErrBusy
	}
	opCtx, cycle := c.beginLocked(ctx)
	c.clearLocked()
	c.url = rawURL
	c.setStateLocked(model.StateParsing)
	c.publishLocked(fmt.Sprintf("Parsing %s", rawURL), LevelVerbose)
	c.mu.Unlock()
	c.flush()

	media, err := c.parser.Parse(opCtx, rawURL, c.skipCache)

	c.mu.Lock()
	if cycle != c.cycle {
		c.mu.Unlock()
		return ErrReset
	}
	c.endOpLocked()

	if err == nil && media == nil {
		err = &model.ParseError{URL: rawURL}
	}
	if err != nil {
		var parseErr *model.ParseError
		if !errors.As(err, &parseErr) {
			err = &model.ParseError{URL: rawURL, Err: err}
		}
		c.failLocked(err)
		c.mu.Unlock()
		c.flush()
		return err
	}

	c.media = media
	c.setStateLocked(model.StateParsed)
	c.publishLocked(fmt.Sprintf("Found %q (%d formats)", media.Title, len(media.Formats)), LevelInfo)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Submit starts a download of the parsed media and subscribes to its
// progress. An empty formatID lets the backend pick the best format.
//
// It requires parsed media and returns ErrNoMedia otherwise, leaving the
// state unchanged.
func (c *Controller) Submit(ctx context.Context, kind model.DownloadKind, formatID string) error {
	if kind != model.KindVideo && kind != model.KindAudio {
		return fmt.Errorf("download: unsupported kind %q", kind)
	}

	c.mu.Lock()
	if c.state.IsBusy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.media == nil {
		c.mu.Unlock()
		return ErrNoMedia
	}
	if formatID != "" {
		if _, ok := c.media.FindFormat(formatID); !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownFormat, formatID)
		}
	}

	media := c.media
	req := model.DownloadRequest{
		URL:      c.sourceURLLocked(),
		Mode:     kind.Mode(),
		Quality:  c.quality,
		Format:   c.container,
		FormatID: formatID,
	}
	opCtx, cycle := c.beginLocked(ctx)
	c.task = &model.DownloadTask{Kind: kind, FormatID: formatID, State: model.StateDownloading}
	c.progress = Progress{}
	c.err = nil
	c.filePath = ""
	c.retrievalErr = nil
	c.setStateLocked(model.StateDownloading)
	c.publishLocked(fmt.Sprintf("Submitting %s download of %q", kind, media.Title), LevelVerbose)
	c.mu.Unlock()
	c.flush()

	ticket, err := c.submitter.SubmitDownload(opCtx, req)

	c.mu.Lock()
	if cycle != c.cycle {
		c.mu.Unlock()
		return ErrReset
	}
	c.endOpLocked()

	if err == nil && ticket == nil {
		err = &model.SubmissionError{URL: req.URL}
	}
	if err != nil {
		var subErr *model.SubmissionError
		if !errors.As(err, &subErr) {
			err = &model.SubmissionError{URL: req.URL, Err: err}
		}
		c.task = nil
		c.failLocked(err)
		c.mu.Unlock()
		c.flush()
		return err
	}

	c.task.TaskID = ticket.TaskID
	c.task.HistoryID = ticket.HistoryID
	taskID := ticket.TaskID
	c.publishLocked(fmt.Sprintf("Download task %s queued", taskID), LevelVerbose)
	c.mu.Unlock()
	c.flush()

	logger := log.WithFields(log.Fields{"task_id": taskID, "history_id": ticket.HistoryID})
	logger.Debug("Subscribing to task progress")

	err = c.channel.Subscribe(taskID, &taskHandler{c: c, cycle: cycle, taskID: taskID})

	c.mu.Lock()
	if cycle != c.cycle {
		c.mu.Unlock()
		if err == nil {
			c.channel.Unsubscribe(taskID)
		}
		return ErrReset
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		c.flush()
		return err
	}
	c.mu.Unlock()
	return nil
}

// Reset returns to idle from any state. The current task is unsubscribed;
// work already running on the backend is not cancelled.
func (c *Controller) Reset() {
	c.mu.Lock()
	var taskID string
	if c.task != nil && c.state == model.StateDownloading {
		taskID = c.task.TaskID
	}
	c.cycle++
	c.endOpLocked()
	c.clearLocked()
	c.url = ""
	c.setStateLocked(model.StateIdle)
	c.publishLocked("", LevelVerbose)
	c.mu.Unlock()

	if taskID != "" {
		c.channel.Unsubscribe(taskID)
	}
	c.flush()
}

// Close resets the controller and cancels running retrievals.
func (c *Controller) Close() {
	c.Reset()
	c.cancel()
}

// Wait blocks until no operation is in flight and no retrieval is
// running, then returns the final snapshot.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		if !c.state.IsBusy() && c.retrieving == 0 {
			s := c.snapshotLocked()
			c.mu.Unlock()
			return s, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// DownloadFile retrieves the finished file of the completed task again.
func (c *Controller) DownloadFile(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != model.StateCompleted || c.task == nil || c.task.HistoryID == 0 {
		c.mu.Unlock()
		return "", ErrNoHistory
	}
	task := *c.task
	media := c.media
	cycle := c.cycle
	c.retrieving++
	c.publishLocked(fmt.Sprintf("Retrieving file for history %d", task.HistoryID), LevelVerbose)
	c.mu.Unlock()
	c.flush()

	return c.retrieve(ctx, cycle, task, media)
}

// handleProgress applies one event of the subscribed task.
func (c *Controller) handleProgress(cycle uint64, ev model.ProgressEvent) {
	c.mu.Lock()
	if cycle != c.cycle || c.state != model.StateDownloading || c.task == nil || c.task.TaskID != ev.TaskID {
		c.mu.Unlock()
		return
	}

	c.progress = Progress{
		Percent:         ev.Percent,
		Speed:           ev.Speed,
		ETA:             ev.ETA,
		DownloadedBytes: ev.DownloadedBytes,
		TotalBytes:      ev.TotalBytes,
	}
	if c.task.HistoryID == 0 && ev.HistoryID != 0 {
		c.task.HistoryID = ev.HistoryID
	}

	var (
		unsubscribe bool
		startFetch  bool
		task        model.DownloadTask
		media       = c.media
	)
	switch ev.Status {
	case model.StatusCompleted:
		unsubscribe = true
		c.progress.Percent = 100
		c.setStateLocked(model.StateCompleted)
		c.publishLocked("Download complete", LevelSuccess)

		if c.task.HistoryID == 0 {
			c.retrievalErr = &model.CorrelationError{TaskID: ev.TaskID}
			log.WithField("task_id", ev.TaskID).Error("Completed task has no history id")
			c.publishLocked(c.retrievalErr.Error(), LevelError)
		} else {
			startFetch = true
			task = *c.task
			c.retrieving++
			c.publishLocked(fmt.Sprintf("Retrieving file for history %d", task.HistoryID), LevelVerbose)
		}

	case model.StatusFailed:
		unsubscribe = true
		c.failLocked(&model.TaskFailedError{TaskID: ev.TaskID, Message: ev.ErrorMessage})

	default:
		c.publishLocked("", LevelVerbose)
	}
	c.mu.Unlock()

	if unsubscribe {
		c.channel.Unsubscribe(ev.TaskID)
	}
	c.flush()

	if startFetch {
		go c.retrieve(c.ctx, cycle, task, media)
	}
}

// channelLost moves a download stalled by a dead progress channel to error.
func (c *Controller) channelLost(cycle uint64, taskID string, err error) {
	c.mu.Lock()
	if cycle != c.cycle || c.state != model.StateDownloading || c.task == nil || c.task.TaskID != taskID {
		c.mu.Unlock()
		return
	}
	var lost *model.ChannelLostError
	if !errors.As(err, &lost) {
		err = &model.ChannelLostError{Err: err}
	}
	c.failLocked(err)
	c.mu.Unlock()

	c.channel.Unsubscribe(taskID)
	c.flush()
}

// retrieve runs the retriever. The caller has already counted it in
// c.retrieving. Failures are reported but never change the state.
func (c *Controller) retrieve(ctx context.Context, cycle uint64, task model.DownloadTask, media *model.MediaDescriptor) (string, error) {
	logger := log.WithFields(log.Fields{"task_id": task.TaskID, "history_id": task.HistoryID})
	path, err := c.retriever.Retrieve(ctx, task, media)

	c.mu.Lock()
	c.retrieving--
	current := cycle == c.cycle
	if err != nil {
		var retErr *model.RetrievalError
		if !errors.As(err, &retErr) {
			err = &model.RetrievalError{HistoryID: task.HistoryID, Err: err}
		}
		logger.WithError(err).Warn("Retrieval failed")
		if current {
			c.retrievalErr = err
		}
		c.publishLocked(err.Error(), LevelError)
	} else {
		logger.WithField("path", path).Debug("Retrieved file")
		if current {
			c.filePath = path
			c.retrievalErr = nil
		}
		c.publishLocked(fmt.Sprintf("Saved %s", path), LevelSuccess)
	}
	c.mu.Unlock()
	c.flush()
	return path, err
}

// beginLocked starts a new cycle and derives a context Reset can cancel.
func (c *Controller) beginLocked(ctx context.Context) (context.Context, uint64) {
	c.cycle++
	c.endOpLocked()
	opCtx, cancel := context.WithCancel(ctx)
	c.cancelOp = cancel
	return opCtx, c.cycle
}

func (c *Controller) endOpLocked() {
	if c.cancelOp != nil {
		c.cancelOp()
		c.cancelOp = nil
	}
}

func (c *Controller) clearLocked() {
	c.media = nil
	c.task = nil
	c.progress = Progress{}
	c.err = nil
	c.filePath = ""
	c.retrievalErr = nil
}

func (c *Controller) failLocked(err error) {
	c.err = err
	c.setStateLocked(model.StateError)
	c.publishLocked(err.Error(), LevelError)
}

func (c *Controller) setStateLocked(s model.LifecycleState) {
	log.WithFields(log.Fields{"from": c.state, "to": s}).Debug("Lifecycle transition")
	c.state = s
	if c.task != nil {
		c.task.State = s
	}
}

func (c *Controller) sourceURLLocked() string {
	if c.media != nil && c.media.SourceURL != "" {
		return c.media.SourceURL
	}
	return c.url
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:        c.state,
		URL:          c.url,
		Media:        c.media,
		Progress:     c.progress,
		Err:          c.err,
		Retrieving:   c.retrieving > 0,
		FilePath:     c.filePath,
		RetrievalErr: c.retrievalErr,
	}
	if c.task != nil {
		task := *c.task
		s.Task = &task
	}
	return s
}

// publishLocked queues an update and wakes Wait callers.
func (c *Controller) publishLocked(msg string, level ProgressLevel) {
	close(c.changed)
	c.changed = make(chan struct{})
	if c.onUpdate == nil {
		return
	}
	c.pending = append(c.pending, Update{Snapshot: c.snapshotLocked(), Message: msg, Level: level})
}

// flush delivers queued updates outside the lock. Only one goroutine
// delivers at a time, so updates arrive in the order they were queued.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.flushing || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	c.flushing = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, u := range batch {
			c.onUpdate(u)
		}
		c.mu.Lock()
	}
	c.flushing = false
	c.mu.Unlock()
}

// taskHandler binds channel callbacks to the cycle that subscribed them.
type taskHandler struct {
	c      *Controller
	cycle  uint64
	taskID string
}

func (h *taskHandler) HandleProgress(ev model.ProgressEvent) { h.c.handleProgress(h.cycle, ev) }
func (h *taskHandler) ChannelLost(err error)                 { h.c.channelLost(h.cycle, h.taskID, err) }
