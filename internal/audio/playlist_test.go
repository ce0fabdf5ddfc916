package audio

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/handiism/vasset-downloader/internal/model"
)

func testEntries(dir string) []PlaylistEntry {
	return []PlaylistEntry{
		{
			Path:  filepath.Join(dir, "first.mp3"),
			Media: &model.MediaDescriptor{Title: "First", Author: "Someone", Duration: 180},
		},
		{
			Path: filepath.Join(dir, "sub", "second.mp4"),
		},
	}
}

func TestPlaylistCreator_M3U(t *testing.T) {
	dir := t.TempDir()
	content := NewPlaylistCreator(FormatM3U, false).CreatePlaylist(dir, testEntries(dir))

	want := "first.mp3\nsub/second.mp4\n"
	if content != want {
		t.Errorf("M3U = %q, want %q", content, want)
	}
}

func TestPlaylistCreator_M3UExtended(t *testing.T) {
	dir := t.TempDir()
	content := NewPlaylistCreator(FormatM3U, true).CreatePlaylist(dir, testEntries(dir))

	if !strings.HasPrefix(content, "#EXTM3U\n") {
		t.Error("Extended M3U should start with #EXTM3U")
	}
	if !strings.Contains(content, "#EXTINF:180,Someone - First\n") {
		t.Errorf("missing EXTINF for described entry:\n%s", content)
	}
	if !strings.Contains(content, "#EXTINF:-1,second\n") {
		t.Errorf("missing EXTINF for bare entry:\n%s", content)
	}
}

func TestPlaylistCreator_PLS(t *testing.T) {
	dir := t.TempDir()
	content := NewPlaylistCreator(FormatPLS, false).CreatePlaylist(dir, testEntries(dir))

	for _, want := range []string{"[playlist]\n", "File1=first.mp3\n", "Title1=Someone - First\n", "Length1=180\n", "NumberOfEntries=2\n", "Version=2\n"} {
		if !strings.Contains(content, want) {
			t.Errorf("PLS missing %q:\n%s", want, content)
		}
	}
}

func TestPlaylistFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want PlaylistFormat
	}{
		{"batch.m3u", FormatM3U},
		{"batch.M3U8", FormatM3U},
		{"batch.pls", FormatPLS},
		{"batch.PLS", FormatPLS},
	}
	for _, tt := range tests {
		if got := PlaylistFormatFromPath(tt.path); got != tt.want {
			t.Errorf("PlaylistFormatFromPath(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}
