package http

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/handiism/vasset-downloader/internal/model"
	"github.com/handiism/vasset-downloader/internal/session"
)

type parseRequest struct {
	URL       string `json:"url"`
	SkipCache bool   `json:"skip_cache"`
}

type parseResponse struct {
	VideoID     string       `json:"video_id"`
	Platform    string       `json:"platform"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Duration    float64      `json:"duration"`
	Thumbnail   string       `json:"thumbnail"`
	Author      string       `json:"author"`
	UploadDate  string       `json:"upload_date"`
	ViewCount   float64      `json:"view_count"`
	Formats     []wireFormat `json:"formats"`
}

// wireFormat accepts both "ext" and "extension"; backend versions differ.
type wireFormat struct {
	FormatID   string  `json:"format_id"`
	Quality    string  `json:"quality"`
	Ext        string  `json:"ext"`
	Extension  string  `json:"extension"`
	FileSize   float64 `json:"filesize"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	FPS        float64 `json:"fps"`
	VideoCodec string  `json:"video_codec"`
	AudioCodec string  `json:"audio_codec"`
	VBR        float64 `json:"vbr"`
	ABR        float64 `json:"abr"`
	ASR        float64 `json:"asr"`
}

func (r *parseResponse) descriptor(sourceURL string) *model.MediaDescriptor {
	m := &model.MediaDescriptor{
		SourceURL:   sourceURL,
		VideoID:     r.VideoID,
		Platform:    r.Platform,
		Title:       r.Title,
		Description: r.Description,
		Author:      r.Author,
		UploadDate:  r.UploadDate,
		ViewCount:   int64(r.ViewCount),
		Thumbnail:   r.Thumbnail,
		Duration:    int64(r.Duration),
		Formats:     make([]model.FormatVariant, 0, len(r.Formats)),
	}
	for _, f := range r.Formats {
		ext := f.Ext
		if ext == "" {
			ext = f.Extension
		}
		m.Formats = append(m.Formats, model.FormatVariant{
			FormatID:     f.FormatID,
			Quality:      f.Quality,
			Extension:    ext,
			FileSize:     int64(f.FileSize),
			Height:       f.Height,
			Width:        f.Width,
			FPS:          f.FPS,
			VideoCodec:   f.VideoCodec,
			AudioCodec:   f.AudioCodec,
			VideoBitrate: f.VBR,
			AudioBitrate: f.ABR,
			SampleRate:   int(f.ASR),
		})
	}
	return m
}

// Parse asks the backend to resolve rawURL into a media descriptor.
// Failures are returned as *model.ParseError and are never retried.
func (c *Client) Parse(ctx context.Context, rawURL string, skipCache bool) (*model.MediaDescriptor, error) {
	var resp parseResponse
	if err := c.do(ctx, http.MethodPost, "/parse", parseRequest{URL: rawURL, SkipCache: skipCache}, &resp); err != nil {
		return nil, &model.ParseError{URL: rawURL, Err: err}
	}
	if resp.VideoID == "" && resp.Title == "" && len(resp.Formats) == 0 {
		return nil, &model.ParseError{URL: rawURL}
	}

	media := resp.descriptor(rawURL)
	log.WithFields(log.Fields{
		"url":      rawURL,
		"platform": media.Platform,
		"formats":  len(media.Formats),
	}).Debug("Parsed media")
	return media, nil
}

// SubmitDownload starts a server-side download task.
// Failures are returned as *model.SubmissionError.
func (c *Client) SubmitDownload(ctx context.Context, req model.DownloadRequest) (*model.DownloadTicket, error) {
	var ticket model.DownloadTicket
	if err := c.do(ctx, http.MethodPost, "/download", req, &ticket); err != nil {
		return nil, &model.SubmissionError{URL: req.URL, Err: err}
	}
	if ticket.TaskID == "" {
		return nil, &model.SubmissionError{URL: req.URL, Err: errors.New("backend returned no task id")}
	}

	log.WithFields(log.Fields{
		"task_id":    ticket.TaskID,
		"history_id": ticket.HistoryID,
		"mode":       req.Mode,
	}).Debug("Download submitted")
	return &ticket, nil
}

// LoginResult is the payload of a successful login.
type LoginResult struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         session.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates and stores the issued tokens in the token store.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &res); err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	if c.tokens != nil {
		if err := c.tokens.SetTokens(res.Token, res.RefreshToken); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// Logout invalidates the session on the backend. The local credential is
// cleared even when the request fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if c.tokens != nil {
		if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
			err = clearErr
		}
	}
	return err
}
