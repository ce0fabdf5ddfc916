package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/handiism/vasset-downloader/internal/model"
)

// ErrMalformed wraps every payload Decode rejects.
var ErrMalformed = errors.New("malformed progress payload")

// wireEvent is the JSON shape pushed by the backend. Status may be a
// number or a string depending on the backend version.
type wireEvent struct {
	TaskID          string          `json:"task_id"`
	Status          json.RawMessage `json:"status"`
	StatusText      string          `json:"status_text"`
	Percent         float64         `json:"percent"`
	DownloadedBytes int64           `json:"downloaded_bytes"`
	TotalBytes      int64           `json:"total_bytes"`
	Speed           string          `json:"speed"`
	ETA             string          `json:"eta"`
	FilePath        string          `json:"file_path"`
	ErrorMessage    string          `json:"error_message"`
	Message         string          `json:"message"`
	HistoryID       int64           `json:"history_id"`
}

// Decode parses one pushed payload into a normalized ProgressEvent.
func Decode(payload []byte) (model.ProgressEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return model.ProgressEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.TaskID == "" {
		return model.ProgressEvent{}, fmt.Errorf("%w: missing task_id", ErrMalformed)
	}

	status, err := decodeStatus(w.Status)
	if err != nil {
		return model.ProgressEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// A terminal status_text wins over a non-terminal or missing status.
	if text := textStatus(w.StatusText); text != model.StatusUnknown && (text.IsTerminal() || status == model.StatusUnknown) {
		status = text
	}

	errMsg := w.ErrorMessage
	if errMsg == "" && status == model.StatusFailed {
		errMsg = w.Message
	}

	return model.ProgressEvent{
		TaskID:          w.TaskID,
		Status:          status,
		Percent:         clampPercent(w.Percent),
		DownloadedBytes: w.DownloadedBytes,
		TotalBytes:      w.TotalBytes,
		Speed:           w.Speed,
		ETA:             w.ETA,
		FilePath:        w.FilePath,
		ErrorMessage:    errMsg,
		HistoryID:       w.HistoryID,
	}, nil
}

func decodeStatus(raw json.RawMessage) (model.TaskStatus, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.StatusUnknown, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.StatusUnknown, err
		}
		return textStatus(s), nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return model.StatusUnknown, fmt.Errorf("status: %v", err)
	}
	return numericStatus(int(n)), nil
}

func numericStatus(n int) model.TaskStatus {
	switch n {
	case 0:
		return model.StatusPending
	case 1:
		return model.StatusRunning
	case 2:
		return model.StatusCompleted
	case 3:
		return model.StatusFailed
	}
	return model.StatusUnknown
}

func textStatus(s string) model.TaskStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued":
		return model.StatusPending
	case "downloading", "running", "merging", "processing":
		return model.StatusRunning
	case "completed", "complete", "success":
		return model.StatusCompleted
	case "failed", "error":
		return model.StatusFailed
	}
	return model.StatusUnknown
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
