// Package model defines the data structures shared by the download client.
//
// # Media
//
// MediaDescriptor is what the backend returns for a parsed URL. Each of its
// FormatVariant values is classified by codec:
//
//	for _, f := range media.VideoFormats() {
//	    fmt.Println(f.FormatID, f.Resolution(), CodecDisplayName(f.VideoCodec))
//	}
//
// # Tasks
//
// DownloadTask records the task identifier (used to correlate progress
// events) and the history identifier (used to fetch the finished file).
//
// # Events
//
// ProgressEvent is a normalized push event. Its Status is one of
// StatusPending, StatusRunning, StatusCompleted or StatusFailed regardless
// of how the backend encoded it.
//
// # Errors
//
// ParseError, SubmissionError, RetrievalError, CorrelationError and
// ChannelLostError classify the failures a download cycle can surface.
package model
