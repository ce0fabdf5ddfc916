package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/handiism/vasset-downloader/internal/model"
	"github.com/handiism/vasset-downloader/internal/session"
)

func newBackend(t *testing.T, setup func(r *gin.Engine)) (*Client, *session.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	setup(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	store := session.NewStore("")
	if err := store.SetTokens("tok", "refresh"); err != nil {
		t.Fatal(err)
	}
	return NewClient(Options{BaseURL: srv.URL + "/", Tokens: store}), store
}

func ok(data any) gin.H {
	return gin.H{"code": 0, "message": "success", "data": data}
}

func TestClient_Parse(t *testing.T) {
	client, _ := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/parse", func(c *gin.Context) {
			if got := c.GetHeader("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q", got)
			}
			if c.GetHeader("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
			var body struct {
				URL       string `json:"url"`
				SkipCache bool   `json:"skip_cache"`
			}
			if err := c.ShouldBindJSON(&body); err != nil || body.URL != "https://youtu.be/abc" || !body.SkipCache {
				t.Errorf("body = %+v, err = %v", body, err)
			}
			c.JSON(http.StatusOK, ok(gin.H{
				"video_id":  "abc",
				"platform":  "youtube",
				"title":     "Clip",
				"author":    "Someone",
				"duration":  212.4,
				"thumbnail": "https://img/abc.jpg",
				"formats": []gin.H{
					{"format_id": "137", "quality": "1080p", "ext": "mp4", "height": 1080, "width": 1920, "video_codec": "avc1", "audio_codec": "none", "filesize": 1.5e7},
					{"format_id": "140", "quality": "medium", "extension": "m4a", "video_codec": "none", "audio_codec": "mp4a", "abr": 129.5, "asr": 44100},
				},
			}))
		})
	})

	media, err := client.Parse(context.Background(), "https://youtu.be/abc", true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if media.SourceURL != "https://youtu.be/abc" || media.Title != "Clip" || media.Duration != 212 {
		t.Errorf("media = %+v", media)
	}
	if len(media.Formats) != 2 {
		t.Fatalf("formats = %d, want 2", len(media.Formats))
	}
	if f := media.Formats[0]; f.Extension != "mp4" || f.Kind() != model.MediaVideo || f.FileSize != 15000000 {
		t.Errorf("video format = %+v", f)
	}
	if f := media.Formats[1]; f.Extension != "m4a" || f.Kind() != model.MediaAudio || f.SampleRate != 44100 {
		t.Errorf("audio format = %+v", f)
	}
}

func TestClient_ParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    gin.H
		wantMsg string
	}{
		{"envelope code with HTTP 200", http.StatusOK, gin.H{"code": 4001, "message": "unsupported platform"}, "unsupported platform"},
		{"HTTP error with message", http.StatusBadGateway, gin.H{"code": 5000, "message": "extractor crashed"}, "extractor crashed"},
		{"HTTP error without message", http.StatusInternalServerError, gin.H{"code": 5000}, model.FallbackParseMessage},
		{"empty result", http.StatusOK, ok(gin.H{}), model.FallbackParseMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newBackend(t, func(r *gin.Engine) {
				r.POST("/api/v1/parse", func(c *gin.Context) { c.JSON(tt.status, tt.body) })
			})

			_, err := client.Parse(context.Background(), "https://x", false)
			var parseErr *model.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error = %T %v, want *model.ParseError", err, err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_UnauthorizedClearsTokens(t *testing.T) {
	client, store := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/download", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "token expired"})
		})
	})

	_, err := client.SubmitDownload(context.Background(), model.DownloadRequest{URL: "https://x", Mode: "quick_download"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
		t.Fatalf("error = %v, want unauthorized APIError", err)
	}
	if store.IsAuthenticated() {
		t.Error("token store should be cleared after 401")
	}
}

func TestClient_SubmitDownload(t *testing.T) {
	client, _ := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/download", func(c *gin.Context) {
			var req model.DownloadRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				t.Errorf("bind: %v", err)
			}
			want := model.DownloadRequest{URL: "https://x", Mode: "audio_only", Quality: "best", Format: "mp4", FormatID: "140"}
			if req != want {
				t.Errorf("request = %+v, want %+v", req, want)
			}
			c.JSON(http.StatusOK, ok(gin.H{"task_id": "task-1", "history_id": 42, "estimated_time": 30}))
		})
	})

	ticket, err := client.SubmitDownload(context.Background(), model.DownloadRequest{
		URL: "https://x", Mode: "audio_only", Quality: "best", Format: "mp4", FormatID: "140",
	})
	if err != nil {
		t.Fatalf("SubmitDownload: %v", err)
	}
	if ticket.TaskID != "task-1" || ticket.HistoryID != 42 || ticket.EstimatedTime != 30 {
		t.Errorf("ticket = %+v", ticket)
	}
}

func TestClient_SubmitDownloadRejected(t *testing.T) {
	client, _ := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/download", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"code": 4290, "message": "daily quota exceeded"})
		})
	})

	_, err := client.SubmitDownload(context.Background(), model.DownloadRequest{URL: "https://x"})
	var subErr *model.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %T, want *model.SubmissionError", err)
	}
	if err.Error() != "daily quota exceeded" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestClient_DownloadFile(t *testing.T) {
	content := []byte("0123456789abcdef")
	client, _ := newBackend(t, func(r *gin.Engine) {
		r.GET("/api/v1/download/file", func(c *gin.Context) {
			if c.Query("history_id") != "42" {
				t.Errorf("history_id = %q", c.Query("history_id"))
			}
			c.Header("Content-Disposition", `attachment; filename="My Clip.mp4"`)
			c.Data(http.StatusOK, "video/mp4", content)
		})
	})

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "My Clip.mp4"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	var lastWritten, lastTotal int64
	path, err := client.DownloadFile(context.Background(), 42, dir, func(written, total int64) {
		lastWritten, lastTotal = written, total
	})
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if filepath.Base(path) != "My Clip (1).mp4" {
		t.Errorf("path = %q, want unique name", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(content) {
		t.Errorf("content = %q", data)
	}
	if lastWritten != int64(len(content)) || lastTotal != int64(len(content)) {
		t.Errorf("progress = %d/%d", lastWritten, lastTotal)
	}
	kept, _ := os.ReadFile(filepath.Join(dir, "My Clip.mp4"))
	if string(kept) != "keep" {
		t.Error("existing file was overwritten")
	}
}

func TestClient_DownloadFileFallbackName(t *testing.T) {
	client, _ := newBackend(t, func(r *gin.Engine) {
		r.GET("/api/v1/download/file", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/octet-stream", []byte("x"))
		})
	})

	path, err := client.DownloadFile(context.Background(), 1, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if filepath.Base(path) != "download" {
		t.Errorf("name = %q, want download", filepath.Base(path))
	}
}

func TestClient_DownloadFileFailure(t *testing.T) {
	client, _ := newBackend(t, func(r *gin.Engine) {
		r.GET("/api/v1/download/file", func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "file expired"})
		})
	})

	dir := t.TempDir()
	_, err := client.DownloadFile(context.Background(), 9, dir, nil)
	var retErr *model.RetrievalError
	if !errors.As(err, &retErr) || retErr.HistoryID != 9 {
		t.Fatalf("error = %v, want *model.RetrievalError for history 9", err)
	}
	if err.Error() != "file expired" {
		t.Errorf("Error() = %q", err.Error())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dir has %d entries, want none", len(entries))
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`attachment; filename="clip.mp4"`, "clip.mp4"},
		{`attachment; filename=clip.mp3`, "clip.mp3"},
		{`attachment; filename*=UTF-8''%E4%B8%AD%E6%96%87.mp4`, "中文.mp4"},
		{`attachment; filename="../../evil.sh"`, "evil.sh"},
		{`attachment`, "download"},
		{``, "download"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := FilenameFromDisposition(tt.header); got != tt.want {
				t.Errorf("FilenameFromDisposition(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestClient_LoginLogout(t *testing.T) {
	client, store := newBackend(t, func(r *gin.Engine) {
		r.POST("/api/v1/auth/login", func(c *gin.Context) {
			c.JSON(http.StatusOK, ok(gin.H{
				"token":         "new-token",
				"refresh_token": "new-refresh",
				"expires_in":    3600,
				"user":          gin.H{"user_id": "u1", "email": "a@b.c", "nickname": "ab"},
			}))
		})
		r.POST("/api/v1/auth/logout", func(c *gin.Context) {
			c.JSON(http.StatusOK, ok(nil))
		})
	})

	res, err := client.Login(context.Background(), "a@b.c", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.Email != "a@b.c" || store.Token() != "new-token" || store.RefreshToken() != "new-refresh" {
		t.Errorf("login result = %+v, token = %q", res, store.Token())
	}

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if store.IsAuthenticated() {
		t.Error("store should be empty after logout")
	}
}
