package model

import (
	"errors"
	"fmt"
)

// Fallback messages used when a failure carries no message of its own.
const (
	FallbackParseMessage      = "parse failed, please check the link"
	FallbackSubmissionMessage = "failed to submit download task"
	FallbackDownloadMessage   = "download failed"
	FallbackRetrievalMessage  = "file download failed"
	FallbackChannelMessage    = "lost connection to the progress channel"
)

// ParseError reports a failed URL parse. It is never retried automatically.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return messageOr(e.Err, FallbackParseMessage)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SubmissionError reports a rejected download submission.
type SubmissionError struct {
	URL string
	Err error
}

func (e *SubmissionError) Error() string {
	return messageOr(e.Err, FallbackSubmissionMessage)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RetrievalError reports a failed transfer of a finished file. It never
// changes the lifecycle state; the user can retry from history.
type RetrievalError struct {
	HistoryID int64
	Err       error
}

func (e *RetrievalError) Error() string {
	return messageOr(e.Err, FallbackRetrievalMessage)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// CorrelationError reports a completed task whose history identifier is
// unknown, so the file cannot be fetched automatically.
type CorrelationError struct {
	TaskID string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("download %s finished but its file could not be located, please download it manually from history", e.TaskID)
}

// ChannelLostError reports that the progress channel gave up reconnecting.
type ChannelLostError struct {
	Attempts int
	Err      error
}

func (e *ChannelLostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s after %d attempts: %v", FallbackChannelMessage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s after %d attempts", FallbackChannelMessage, e.Attempts)
}

func (e *ChannelLostError) Unwrap() error { return e.Err }

// TaskFailedError carries the error message of a failed progress event.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	if e.Message == "" {
		return FallbackDownloadMessage
	}
	return e.Message
}

// serverMessager is implemented by errors that carry a message written by
// the backend. An empty server message selects the fallback.
type serverMessager interface {
	ServerMessage() string
}

func messageOr(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var sm serverMessager
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
