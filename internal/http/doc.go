// Package http provides the client for the media backend's REST API.
//
// The Client in this package handles:
//   - Bearer credentials from a shared token store, cleared on 401
//   - The {code, message, data} response envelope
//   - URL parsing and download submission
//   - Retrieval of finished files with progress tracking
//
// # Basic Usage
//
//	client := http.NewClient(http.Options{
//	    BaseURL: "http://localhost:8080",
//	    Tokens:  store,
//	})
//
//	media, err := client.Parse(ctx, url, false)
//
//	ticket, err := client.SubmitDownload(ctx, model.DownloadRequest{
//	    URL: url, Mode: "quick_download", Quality: "best", Format: "mp4",
//	})
//
//	path, err := client.DownloadFile(ctx, ticket.HistoryID, "/downloads", func(written, total int64) {
//	    fmt.Printf("%d / %d\n", written, total)
//	})
//
// # Errors
//
// Backend failures are *APIError values. Parse, SubmitDownload and
// DownloadFile wrap them in *model.ParseError, *model.SubmissionError and
// *model.RetrievalError, whose messages repeat the backend's message.
package http
