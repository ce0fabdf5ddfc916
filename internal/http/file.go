package http

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	ioutils "github.com/handiism/vasset-downloader/internal/io"
	"github.com/handiism/vasset-downloader/internal/model"
)

var looseFilename = regexp.MustCompile(`filename="?([^";]+)"?`)

// DownloadFile retrieves the finished file of a history entry into destDir
// and returns the saved path.
//
// The file name comes from the Content-Disposition header, falling back to
// "download". An existing file is never overwritten; "name (1).ext" and so
// on are used instead. A partially written file is removed on failure.
// Failures are returned as *model.RetrievalError.
//
// onProgress may be nil. total is -1 when the size is unknown.
func (c *Client) DownloadFile(ctx context.Context, historyID int64, destDir string, onProgress func(written, total int64)) (string, error) {
	path, err := c.downloadFile(ctx, historyID, destDir, onProgress)
	if err != nil {
		log.WithError(err).WithField("history_id", historyID).Warn("File retrieval failed")
		return "", &model.RetrievalError{HistoryID: historyID, Err: err}
	}
	return path, nil
}

func (c *Client) downloadFile(ctx context.Context, historyID int64, destDir string, onProgress func(written, total int64)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/download/file?history_id=%d", historyID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || isJSON(resp.Header.Get("Content-Type")) {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err := c.check(resp.StatusCode, data); err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{HTTPStatus: resp.StatusCode}
		}
		// A JSON success envelope is not a file.
		return "", fmt.Errorf("backend returned no file for history %d", historyID)
	}

	if err := ioutils.EnsureDir(destDir); err != nil {
		return "", err
	}
	name := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	file, path, err := ioutils.CreateUnique(destDir, name)
	if err != nil {
		return "", err
	}

	var writer io.Writer = file
	if onProgress != nil {
		writer = &ProgressWriter{
			Writer:   file,
			Total:    resp.ContentLength,
			OnUpdate: onProgress,
		}
	}

	_, copyErr := io.Copy(writer, resp.Body)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(path)
		return "", copyErr
	}

	log.WithFields(log.Fields{"history_id": historyID, "path": path}).Info("File retrieved")
	return path, nil
}

// FilenameFromDisposition extracts the file name of a Content-Disposition
// header. It returns "download" when there is none.
func FilenameFromDisposition(header string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	} else if m := looseFilename.FindStringSubmatch(header); m != nil {
		name = m[1]
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return ioutils.DefaultFileName
	}
	// Strip any directory part, whichever separator the server used.
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ioutils.DefaultFileName
	}
	return name
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
