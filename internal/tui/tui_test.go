package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/handiism/vasset-downloader/internal/config"
	"github.com/handiism/vasset-downloader/internal/download"
	"github.com/handiism/vasset-downloader/internal/model"
)

func testMedia() *model.MediaDescriptor {
	return &model.MediaDescriptor{
		Title:    "Clip",
		Author:   "Someone",
		Duration: 212,
		Formats: []model.FormatVariant{
			{FormatID: "22", Extension: "mp4", Height: 720, Width: 1280, VideoCodec: "avc1.64001F", AudioCodec: "mp4a.40.2"},
			{FormatID: "137", Extension: "mp4", Height: 1080, Width: 1920, VideoCodec: "avc1.640028", AudioCodec: "none", FPS: 30},
			{FormatID: "140", Extension: "m4a", AudioCodec: "mp4a.40.2", VideoCodec: "none", AudioBitrate: 129.5, SampleRate: 44100},
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func withSnapshot(t *testing.T, m Model, snap download.Snapshot) Model {
	t.Helper()
	return update(t, m, UpdateMsg{Update: download.Update{Snapshot: snap}})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel() Model {
	return NewModel(nil, config.DefaultSettings())
}

func TestModel_Picker(t *testing.T) {
	m := withSnapshot(t, newTestModel(), download.Snapshot{State: model.StateParsed, Media: testMedia()})

	if m.tab != model.KindVideo {
		t.Fatalf("tab = %s, want video", m.tab)
	}
	if got := m.selectedFormat(); got != "" {
		t.Errorf("initial selection = %q, want best", got)
	}

	m = update(t, m, key("down"))
	if got := m.selectedFormat(); got != "137" {
		t.Errorf("first video row = %q, want 137 (highest first)", got)
	}
	m = update(t, m, key("down"))
	m = update(t, m, key("down"))
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want clamped at 2", m.cursor)
	}

	m = update(t, m, key("tab"))
	if m.tab != model.KindAudio || m.cursor != 0 {
		t.Fatalf("after tab: tab = %s, cursor = %d", m.tab, m.cursor)
	}
	m = update(t, m, key("down"))
	if got := m.selectedFormat(); got != "140" {
		t.Errorf("audio row = %q, want 140", got)
	}

	m = update(t, m, key("up"))
	m = update(t, m, key("up"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
}

func TestModel_PickerDefaultsToAudio(t *testing.T) {
	media := &model.MediaDescriptor{Formats: []model.FormatVariant{
		{FormatID: "251", Extension: "webm", AudioCodec: "opus", VideoCodec: "none"},
	}}
	m := withSnapshot(t, newTestModel(), download.Snapshot{State: model.StateParsed, Media: media})
	if m.tab != model.KindAudio {
		t.Errorf("tab = %s, want audio", m.tab)
	}
}

func TestModel_EnterRequiresURL(t *testing.T) {
	m := newTestModel()
	if _, cmd := m.Update(key("enter")); cmd != nil {
		t.Error("enter with an empty URL should do nothing")
	}

	m.textInput.SetValue("https://youtu.be/abc")
	if _, cmd := m.Update(key("enter")); cmd == nil {
		t.Error("enter with a URL should start parsing")
	}
}

func TestModel_TypingReachesInput(t *testing.T) {
	m := newTestModel()
	for _, r := range "rvq" {
		m = update(t, m, key(string(r)))
	}
	if m.textInput.Value() != "rvq" {
		t.Errorf("input = %q; shortcut keys must not fire while typing", m.textInput.Value())
	}
}

func TestModel_Logs(t *testing.T) {
	m := newTestModel()
	snap := download.Snapshot{State: model.StateDownloading}

	m = update(t, m, UpdateMsg{Update: download.Update{Snapshot: snap, Message: "debug detail", Level: download.LevelVerbose}})
	if len(m.logs) != 0 {
		t.Error("verbose messages should be hidden by default")
	}

	for i := 0; i < maxLogs+3; i++ {
		m = update(t, m, UpdateMsg{Update: download.Update{Snapshot: snap, Message: "step", Level: download.LevelInfo}})
	}
	if len(m.logs) != maxLogs {
		t.Errorf("logs = %d, want %d", len(m.logs), maxLogs)
	}

	m = update(t, m, key("v"))
	m = update(t, m, UpdateMsg{Update: download.Update{Snapshot: snap, Message: "debug detail", Level: download.LevelVerbose}})
	if m.logs[len(m.logs)-1].Message != "debug detail" {
		t.Error("verbose toggle should show verbose messages")
	}
}

func TestModel_OpErrors(t *testing.T) {
	m := withSnapshot(t, newTestModel(), download.Snapshot{State: model.StateParsed, Media: testMedia()})

	m = update(t, m, opDoneMsg{Err: download.ErrBusy})
	if len(m.logs) != 1 || m.logs[0].Level != download.LevelError {
		t.Errorf("logs = %+v", m.logs)
	}

	m = update(t, m, opDoneMsg{Err: download.ErrReset})
	if len(m.logs) != 1 {
		t.Error("reset cancellations should not be logged")
	}

	m = withSnapshot(t, m, download.Snapshot{State: model.StateError, Err: errors.New("boom")})
	m = update(t, m, opDoneMsg{Err: errors.New("boom")})
	if len(m.logs) != 1 {
		t.Error("errors already shown by the error state should not be logged twice")
	}
}

func TestModel_View(t *testing.T) {
	media := testMedia()
	tests := []struct {
		name string
		snap download.Snapshot
		want []string
	}{
		{"idle", download.Snapshot{State: model.StateIdle}, []string{"Enter a media URL"}},
		{"parsing", download.Snapshot{State: model.StateParsing, URL: "https://youtu.be/abc"}, []string{"Parsing https://youtu.be/abc"}},
		{"parsed", download.Snapshot{State: model.StateParsed, Media: media}, []string{"Clip", "Best available", "1920×1080", "(no audio)"}},
		{"downloading", download.Snapshot{
			State: model.StateDownloading,
			Media: media,
			Task:  &model.DownloadTask{TaskID: "t1"},
			Progress: download.Progress{
				Percent: 42, Speed: "1.2MiB/s", ETA: "00:10",
				DownloadedBytes: 512, TotalBytes: 2048,
			},
		}, []string{"42.0%", "1.2MiB/s", "ETA 00:10", "512 B / 2.0 KB"}},
		{"completed", download.Snapshot{State: model.StateCompleted, Media: media, FilePath: "/tmp/Clip.mp4"}, []string{"Download Complete!", "/tmp/Clip.mp4"}},
		{"retrieval failed", download.Snapshot{
			State:        model.StateCompleted,
			Task:         &model.DownloadTask{TaskID: "t1", HistoryID: 7},
			RetrievalErr: &model.RetrievalError{HistoryID: 7},
		}, []string{model.FallbackRetrievalMessage, "f: retry file"}},
		{"error", download.Snapshot{State: model.StateError, Err: &model.TaskFailedError{Message: "video unavailable"}}, []string{"video unavailable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := withSnapshot(t, newTestModel(), tt.snap).View()
			for _, want := range tt.want {
				if !strings.Contains(view, want) {
					t.Errorf("view missing %q:\n%s", want, view)
				}
			}
		})
	}
}

func TestFormatRow(t *testing.T) {
	tests := []struct {
		f    model.FormatVariant
		want string
	}{
		{
			model.FormatVariant{Extension: "mp4", Height: 1080, Width: 1920, VideoCodec: "avc1", AudioCodec: "mp4a", FPS: 30, FileSize: 1572864},
			"1920×1080  mp4   H.264  30fps 1.5 MB",
		},
		{
			model.FormatVariant{Extension: "webm", Quality: "hd", VideoCodec: "vp9"},
			"hd         webm  VP9    (no audio)",
		},
		{
			model.FormatVariant{Extension: "m4a", AudioCodec: "mp4a.40.2", AudioBitrate: 128, SampleRate: 44100},
			"128kbps    m4a   AAC    44.1kHz",
		},
	}
	for _, tt := range tests {
		if got := formatRow(tt.f); got != tt.want {
			t.Errorf("formatRow() = %q, want %q", got, tt.want)
		}
	}
}
