package mockapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/handiism/vasset-downloader/internal/config"
	"github.com/handiism/vasset-downloader/internal/download"
	apihttp "github.com/handiism/vasset-downloader/internal/http"
	"github.com/handiism/vasset-downloader/internal/model"
	"github.com/handiism/vasset-downloader/internal/progress"
	"github.com/handiism/vasset-downloader/internal/session"
)

type env struct {
	server *Server
	srv    *httptest.Server
	store  *session.Store
	client *apihttp.Client
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if opts.StepInterval == 0 {
		opts.StepInterval = 10 * time.Millisecond
	}
	if opts.Steps == 0 {
		opts.Steps = 4
	}
	server := New(opts)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.Close()
		srv.Close()
	})

	store := session.NewStore("")
	client := apihttp.NewClient(apihttp.Options{BaseURL: srv.URL, Tokens: store})
	return &env{server: server, srv: srv, store: store, client: client}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	if _, err := e.client.Login(context.Background(), "dev@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func (e *env) progressURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/api/v1/ws/progress"
}

func TestLogin(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()

	res, err := e.client.Login(ctx, "Dev@Example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.Email != "Dev@Example.com" || res.User.Nickname != "Dev" || res.User.UserID == "" {
		t.Errorf("user = %+v", res.User)
	}
	if res.User.UserID != userID("dev@example.com") {
		t.Error("user id should not depend on email case")
	}
	if res.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", res.ExpiresIn)
	}
	if e.store.Token() != res.Token {
		t.Error("token was not stored")
	}

	_, err = e.client.Login(ctx, "", "")
	var apiErr *apihttp.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeBadRequest {
		t.Errorf("empty credentials error = %v", err)
	}
}

func TestRequiresAuth(t *testing.T) {
	e := newEnv(t, Options{})
	e.store.SetTokens("garbage", "")

	_, err := e.client.Parse(context.Background(), "https://mock.test/watch?v=abc", false)
	var apiErr *apihttp.APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
		t.Fatalf("Parse error = %v, want 401", err)
	}
	if e.store.IsAuthenticated() {
		t.Error("rejected token should be cleared")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newEnv(t, Options{})
	e.login(t)
	token := e.store.Token()

	if err := e.client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if e.store.IsAuthenticated() {
		t.Error("logout should clear the session")
	}

	if _, err := e.server.verifyToken(token); err == nil {
		t.Error("revoked token still verifies")
	}
}

func TestParse(t *testing.T) {
	e := newEnv(t, Options{})
	e.login(t)
	ctx := context.Background()

	media, err := e.client.Parse(ctx, "https://mock.test/watch?v=abc", false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if media.VideoID != "abc" || media.Title != "Mock Video abc" {
		t.Errorf("media = %+v", media)
	}
	if len(media.VideoFormats()) != 2 || len(media.AudioFormats()) != 2 {
		t.Errorf("formats = %d video, %d audio", len(media.VideoFormats()), len(media.AudioFormats()))
	}
	if f, ok := media.FindFormat("140"); !ok || f.Extension != "m4a" {
		t.Errorf("format 140 = %+v", f)
	}

	_, err = e.client.Parse(ctx, "https://unsupported.test/x", false)
	var apiErr *apihttp.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeUnsupported {
		t.Fatalf("unsupported error = %v", err)
	}
	if err.Error() != "unsupported platform" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestSubmitQuota(t *testing.T) {
	e := newEnv(t, Options{})
	e.login(t)

	_, err := e.client.SubmitDownload(context.Background(), model.DownloadRequest{
		URL:  "https://mock.test/quota",
		Mode: model.ModeQuickDownload,
	})
	var subErr *model.SubmissionError
	var apiErr *apihttp.APIError
	if !errors.As(err, &subErr) || !errors.As(err, &apiErr) || apiErr.Code != CodeQuota {
		t.Fatalf("error = %v", err)
	}
}

func TestFileNotReady(t *testing.T) {
	e := newEnv(t, Options{StepInterval: time.Hour, ConnectWait: time.Millisecond})
	e.login(t)
	ctx := context.Background()

	ticket, err := e.client.SubmitDownload(ctx, model.DownloadRequest{URL: "https://mock.test/v/slow", Mode: model.ModeQuickDownload})
	if err != nil {
		t.Fatalf("SubmitDownload: %v", err)
	}

	dir := t.TempDir()
	_, err = e.client.DownloadFile(ctx, ticket.HistoryID, dir, nil)
	var apiErr *apihttp.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatus != http.StatusConflict {
		t.Errorf("not ready error = %v", err)
	}

	_, err = e.client.DownloadFile(ctx, ticket.HistoryID+100, dir, nil)
	if !errors.As(err, &apiErr) || apiErr.HTTPStatus != http.StatusNotFound {
		t.Errorf("unknown history error = %v", err)
	}
}

func newController(t *testing.T, e *env, settings *config.Settings) *download.Controller {
	t.Helper()
	ch := progress.New(progress.Options{URL: e.progressURL(), Tokens: e.store})
	t.Cleanup(func() { ch.Close() })

	ctrl := download.NewController(download.Options{
		Parser:    e.client,
		Submitter: e.client,
		Channel:   ch,
		Retriever: download.NewFileRetriever(e.client, settings),
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func runCycle(t *testing.T, ctrl *download.Controller, url string, kind model.DownloadKind) download.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Parse(ctx, url); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := ctrl.Submit(ctx, kind, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap, err := ctrl.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v (state %s)", err, snap.State)
	}
	return snap
}

func TestEndToEnd(t *testing.T) {
	settings := config.DefaultSettings()
	settings.DownloadsPath = t.TempDir()
	settings.SaveThumbnail = true
	settings.ThumbnailMaxSize = 100

	t.Run("video", func(t *testing.T) {
		e := newEnv(t, Options{})
		e.login(t)
		snap := runCycle(t, newController(t, e, settings), "https://mock.test/watch?v=abc", model.KindVideo)

		if snap.State != model.StateCompleted || snap.Progress.Percent != 100 {
			t.Fatalf("snapshot = %+v", snap)
		}
		if snap.RetrievalErr != nil {
			t.Fatalf("RetrievalErr = %v", snap.RetrievalErr)
		}
		if filepath.Base(snap.FilePath) != "Mock Video abc.mp4" {
			t.Errorf("FilePath = %q", snap.FilePath)
		}
		info, err := os.Stat(snap.FilePath)
		if err != nil || info.Size() != fileSize {
			t.Errorf("saved file: %v, %v", info, err)
		}
		if _, err := os.Stat(filepath.Join(settings.DownloadsPath, "Mock Video abc.jpg")); err != nil {
			t.Errorf("thumbnail: %v", err)
		}
	})

	t.Run("audio", func(t *testing.T) {
		e := newEnv(t, Options{})
		e.login(t)
		// A second task from the same server alternates to textual statuses.
		e.server.seq = 1
		snap := runCycle(t, newController(t, e, settings), "https://mock.test/watch?v=song", model.KindAudio)

		if snap.State != model.StateCompleted || filepath.Ext(snap.FilePath) != ".mp3" {
			t.Fatalf("snapshot = %+v", snap)
		}
	})

	t.Run("failed task", func(t *testing.T) {
		e := newEnv(t, Options{})
		e.login(t)
		snap := runCycle(t, newController(t, e, settings), "https://mock.test/watch?v=fail", model.KindVideo)

		var failed *model.TaskFailedError
		if snap.State != model.StateError || !errors.As(snap.Err, &failed) {
			t.Fatalf("snapshot = %+v", snap)
		}
		if failed.Message != "simulated extraction failure" {
			t.Errorf("Message = %q", failed.Message)
		}
	})

	t.Run("missing history id", func(t *testing.T) {
		e := newEnv(t, Options{})
		e.login(t)
		snap := runCycle(t, newController(t, e, settings), "https://mock.test/watch?v=nohistory", model.KindVideo)

		var corr *model.CorrelationError
		if snap.State != model.StateCompleted || !errors.As(snap.RetrievalErr, &corr) {
			t.Fatalf("snapshot = %+v", snap)
		}
	})
}
