package model

// TaskStatus is the normalized status carried by a ProgressEvent.
//
// The backend has encoded status both as a number (0..3) and as text;
// both are folded into this type when an event enters the client.
type TaskStatus int

const (
	StatusUnknown TaskStatus = iota
	StatusPending
	StatusRunning
	StatusCompleted
	StatusFailed
)

// String returns the lower-case name of the status.
func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the status ends a task.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProgressEvent is one push notification about a task.
type ProgressEvent struct {
	TaskID string
	Status TaskStatus

	// Percent is in [0, 100]. It usually grows but the channel does not
	// guarantee it.
	Percent float64

	DownloadedBytes int64
	TotalBytes      int64

	// Speed and ETA are human readable strings produced by the backend.
	Speed string
	ETA   string

	FilePath     string
	ErrorMessage string

	// HistoryID is set by backends that echo it on terminal events.
	HistoryID int64
}
