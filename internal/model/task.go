package model

import (
	"fmt"
	"strings"
)

// DownloadKind is what the user asked to download.
type DownloadKind string

const (
	KindVideo DownloadKind = "video"
	KindAudio DownloadKind = "audio"
)

// Backend download modes.
const (
	ModeQuickDownload = "quick_download"
	ModeAudioOnly     = "audio_only"
)

// Mode maps the kind onto the backend download mode.
func (k DownloadKind) Mode() string {
	if k == KindAudio {
		return ModeAudioOnly
	}
	return ModeQuickDownload
}

// ParseDownloadKind accepts "video" or "audio" in any case.
func ParseDownloadKind(s string) (DownloadKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video", "":
		return KindVideo, nil
	case "audio":
		return KindAudio, nil
	}
	return "", fmt.Errorf("unknown download kind %q (want video or audio)", s)
}

// LifecycleState is a state of the download lifecycle controller.
type LifecycleState string

const (
	StateIdle        LifecycleState = "idle"
	StateParsing     LifecycleState = "parsing"
	StateParsed      LifecycleState = "parsed"
	StateDownloading LifecycleState = "downloading"
	StateCompleted   LifecycleState = "completed"
	StateError       LifecycleState = "error"
)

// String returns the string representation of the state.
func (s LifecycleState) String() string {
	return string(s)
}

// IsTerminal reports whether the state is completed or error.
func (s LifecycleState) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

// IsBusy reports whether a network call or download is in flight.
func (s LifecycleState) IsBusy() bool {
	return s == StateParsing || s == StateDownloading
}

// DownloadRequest is the body of a download submission.
type DownloadRequest struct {
	URL      string `json:"url"`
	Mode     string `json:"mode"`
	Quality  string `json:"quality"`
	Format   string `json:"format"`
	FormatID string `json:"format_id,omitempty"`
}

// DownloadTicket is the backend's answer to a successful submission.
type DownloadTicket struct {
	TaskID        string `json:"task_id"`
	HistoryID     int64  `json:"history_id"`
	EstimatedTime int    `json:"estimated_time"`
}

// DownloadTask correlates one submission with its server-issued identifiers.
//
// TaskID keys progress events; HistoryID is only used to retrieve the
// finished file. The two live in different namespaces.
type DownloadTask struct {
	TaskID    string
	HistoryID int64
	Kind      DownloadKind

	// FormatID is empty when the backend picks the best format.
	FormatID string
	State    LifecycleState
}
