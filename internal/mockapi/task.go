package mockapi

import (
	"bytes"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type taskStatus int

const (
	taskPending taskStatus = iota
	taskRunning
	taskCompleted
	taskFailed
)

const fileSize = 64 * 1024

type task struct {
	id        string
	user      string
	req       submitRequest
	historyID int64

	// textual switches the pushed status between numeric codes and
	// strings, alternating per task.
	textual bool

	mu     sync.Mutex
	status taskStatus
	errMsg string
}

func (t *task) state() (taskStatus, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.errMsg
}

func (t *task) set(status taskStatus, errMsg string) {
	t.mu.Lock()
	t.status = status
	t.errMsg = errMsg
	t.mu.Unlock()
}

func (t *task) audio() bool {
	return t.req.Mode == "audio_only"
}

func (t *task) filename() string {
	ext := "mp4"
	if t.audio() {
		ext = "mp3"
	}
	return "Mock Video " + videoID(t.req.URL) + "." + ext
}

func (t *task) contentType() string {
	if t.audio() {
		return "audio/mpeg"
	}
	return "video/mp4"
}

func (t *task) content() []byte {
	return bytes.Repeat([]byte{0x5a}, fileSize)
}

func (s *Server) newTask(user string, req submitRequest) *task {
	s.mu.Lock()
	s.seq++
	t := &task{
		id:      uuid.NewString(),
		user:    user,
		req:     req,
		textual: s.seq%2 == 0,
	}
	s.nextHistory++
	s.history[s.nextHistory] = t
	if !strings.Contains(req.URL, "nohistory") {
		t.historyID = s.nextHistory
	}
	s.tasks[t.id] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(t)
	return t
}

// run simulates the download and pushes progress to the owner's
// connections.
func (s *Server) run(t *task) {
	defer s.wg.Done()

	logger := log.WithField("task_id", t.id)
	if !s.hub.waitFor(t.user, s.opts.ConnectWait, s.stop) {
		logger.Debug("Mock task starting without a progress connection")
	}

	t.set(taskRunning, "")
	ticker := time.NewTicker(s.opts.StepInterval)
	defer ticker.Stop()

	failAt := -1
	if strings.Contains(t.req.URL, "fail") {
		failAt = s.opts.Steps / 2
	}

	for step := 0; step < s.opts.Steps; step++ {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if step == failAt {
			t.set(taskFailed, "simulated extraction failure")
			s.hub.broadcast(t.user, s.event(t, step, taskFailed))
			logger.Debug("Mock task failed")
			return
		}
		s.hub.broadcast(t.user, s.event(t, step, taskRunning))
	}

	t.set(taskCompleted, "")
	s.hub.broadcast(t.user, s.event(t, s.opts.Steps, taskCompleted))
	logger.Debug("Mock task completed")
}

func (s *Server) event(t *task, step int, status taskStatus) map[string]any {
	percent := float64(step) * 100 / float64(s.opts.Steps)
	downloaded := int64(float64(fileSize) * percent / 100)
	remaining := time.Duration(s.opts.Steps-step) * s.opts.StepInterval

	ev := map[string]any{
		"task_id":          t.id,
		"percent":          percent,
		"downloaded_bytes": downloaded,
		"total_bytes":      fileSize,
		"speed":            "1.2MiB/s",
		"eta":              remaining.Round(time.Second).String(),
	}

	switch status {
	case taskRunning:
		if t.textual && step%2 == 1 {
			ev["status"] = "downloading"
		} else {
			ev["status"] = int(taskRunning)
		}
	case taskFailed:
		ev["status"] = int(taskFailed)
		ev["error_message"] = "simulated extraction failure"
	case taskCompleted:
		if t.textual {
			ev["status_text"] = "completed"
		} else {
			ev["status"] = int(taskCompleted)
		}
		ev["file_path"] = "/data/downloads/" + t.filename()
		if t.historyID != 0 {
			ev["history_id"] = t.historyID
		}
	}
	return ev
}
