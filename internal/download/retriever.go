package download

import (
	"context"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/audio"
	"github.com/handiism/vasset-downloader/internal/config"
	"github.com/handiism/vasset-downloader/internal/http"
	ioutils "github.com/handiism/vasset-downloader/internal/io"
	"github.com/handiism/vasset-downloader/internal/model"
)

// FileClient is the part of the backend client FileRetriever needs.
type FileClient interface {
	DownloadFile(ctx context.Context, historyID int64, destDir string, onProgress func(written, total int64)) (string, error)
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

var _ FileClient = (*http.Client)(nil)

// FileRetriever saves finished downloads into a local directory.
//
// After the transfer it optionally tags audio MP3 files from the media
// descriptor and saves the thumbnail next to the file. Post-processing
// problems are logged and never fail the retrieval.
type FileRetriever struct {
	client       FileClient
	tagger       *audio.Tagger
	imageService *ioutils.ImageService

	destDir       string
	tagAudio      bool
	saveThumbnail bool
	thumbnailMax  int

	// OnProgress, if set, receives byte counts of the transfer.
	OnProgress func(written, total int64)
}

// NewFileRetriever creates a FileRetriever configured from settings.
func NewFileRetriever(client FileClient, settings *config.Settings) *FileRetriever {
	return &FileRetriever{
		client:        client,
		tagger:        audio.NewTagger(audio.DefaultTagConfig()),
		imageService:  ioutils.NewImageService(),
		destDir:       settings.DownloadsPath,
		tagAudio:      settings.TagAudio,
		saveThumbnail: settings.SaveThumbnail,
		thumbnailMax:  settings.ThumbnailMaxSize,
	}
}

// Retrieve implements Retriever.
func (r *FileRetriever) Retrieve(ctx context.Context, task model.DownloadTask, media *model.MediaDescriptor) (string, error) {
	path, err := r.client.DownloadFile(ctx, task.HistoryID, r.destDir, r.OnProgress)
	if err != nil {
		return "", err
	}
	if media != nil {
		r.postProcess(ctx, path, task, media)
	}
	return path, nil
}

func (r *FileRetriever) postProcess(ctx context.Context, path string, task model.DownloadTask, media *model.MediaDescriptor) {
	logger := log.WithFields(log.Fields{"task_id": task.TaskID, "path": path})

	tag := r.tagAudio && task.Kind == model.KindAudio && strings.EqualFold(filepath.Ext(path), ".mp3")
	if !tag && !r.saveThumbnail {
		return
	}

	var cover []byte
	if media.Thumbnail != "" {
		var err error
		cover, err = r.thumbnail(ctx, media.Thumbnail)
		if err != nil {
			logger.WithError(err).Warn("Failed to fetch thumbnail")
		}
	}

	if r.saveThumbnail && cover != nil {
		name := filepath.Base(ioutils.ReplaceExt(path, ".jpg"))
		f, thumbPath, err := ioutils.CreateUnique(filepath.Dir(path), name)
		if err == nil {
			_, err = f.Write(cover)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}
		if err != nil {
			logger.WithError(err).Warn("Failed to save thumbnail")
		} else {
			logger.WithField("thumbnail", thumbPath).Debug("Saved thumbnail")
		}
	}

	if tag {
		if err := r.tagger.SaveTags(path, media, cover); err != nil {
			logger.WithError(err).Warn("Failed to tag audio file")
		}
	}
}

func (r *FileRetriever) thumbnail(ctx context.Context, url string) ([]byte, error) {
	data, err := r.client.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	if r.thumbnailMax > 0 {
		return r.imageService.ResizeImage(ctx, data, r.thumbnailMax, r.thumbnailMax)
	}
	return r.imageService.ConvertToJPEG(ctx, data)
}
