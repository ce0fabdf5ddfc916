package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/handiism/vasset-downloader/internal/model"
)

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// FormatM3U creates .m3u files (most compatible).
	// Can be extended with EXTINF lines for duration/title info.
	FormatM3U PlaylistFormat = iota

	// FormatPLS creates .pls files (Winamp/SHOUTcast format).
	FormatPLS
)

// PlaylistFormatFromPath picks the format from a playlist file extension.
// Anything but .pls is M3U.
func PlaylistFormatFromPath(path string) PlaylistFormat {
	if strings.EqualFold(filepath.Ext(path), ".pls") {
		return FormatPLS
	}
	return FormatM3U
}

// PlaylistEntry is one retrieved file.
type PlaylistEntry struct {
	Path  string
	Media *model.MediaDescriptor
}

func (e PlaylistEntry) title() string {
	if e.Media == nil || e.Media.Title == "" {
		return strings.TrimSuffix(filepath.Base(e.Path), filepath.Ext(e.Path))
	}
	if e.Media.Author == "" {
		return e.Media.Title
	}
	return e.Media.Author + " - " + e.Media.Title
}

func (e PlaylistEntry) duration() int64 {
	if e.Media == nil || e.Media.Duration <= 0 {
		return -1
	}
	return e.Media.Duration
}

// PlaylistCreator generates playlists of the files saved by a batch
// download.
//
// Example:
//
//	creator := NewPlaylistCreator(FormatM3U, true)
//	content := creator.CreatePlaylist("/downloads", entries)
//	os.WriteFile("/downloads/batch.m3u", []byte(content), 0644)
//
//	// Result:
//	// #EXTM3U
//	// #EXTINF:212,Author - Title
//	// Title.mp4
type PlaylistCreator struct {
	format   PlaylistFormat
	extended bool // For M3U: include EXTINF lines with duration/title
}

// NewPlaylistCreator creates a new PlaylistCreator.
//
// extended is only meaningful for M3U.
func NewPlaylistCreator(format PlaylistFormat, extended bool) *PlaylistCreator {
	return &PlaylistCreator{
		format:   format,
		extended: extended,
	}
}

// CreatePlaylist returns playlist content for entries. Paths are written
// relative to dir, the directory the playlist will be saved in, when
// possible.
func (p *PlaylistCreator) CreatePlaylist(dir string, entries []PlaylistEntry) string {
	switch p.format {
	case FormatPLS:
		return p.createPLS(dir, entries)
	default:
		return p.createM3U(dir, entries)
	}
}

// createM3U generates an M3U playlist.
//
// Extended M3U format (when extended=true):
//
//	#EXTM3U
//	#EXTINF:180,Author - Title
//	filename1.mp3
func (p *PlaylistCreator) createM3U(dir string, entries []PlaylistEntry) string {
	var sb strings.Builder

	if p.extended {
		sb.WriteString("#EXTM3U\n")
	}

	for _, e := range entries {
		if p.extended {
			sb.WriteString(fmt.Sprintf("#EXTINF:%d,%s\n", e.duration(), e.title()))
		}
		sb.WriteString(relative(dir, e.Path) + "\n")
	}

	return sb.String()
}

// createPLS generates a PLS playlist.
//
//	[playlist]
//	File1=filename1.mp3
//	Title1=Song Title
//	Length1=180
//	NumberOfEntries=1
//	Version=2
func (p *PlaylistCreator) createPLS(dir string, entries []PlaylistEntry) string {
	var sb strings.Builder

	sb.WriteString("[playlist]\n")

	for i, e := range entries {
		idx := i + 1
		sb.WriteString(fmt.Sprintf("File%d=%s\n", idx, relative(dir, e.Path)))
		sb.WriteString(fmt.Sprintf("Title%d=%s\n", idx, e.title()))
		sb.WriteString(fmt.Sprintf("Length%d=%d\n", idx, e.duration()))
	}

	sb.WriteString(fmt.Sprintf("NumberOfEntries=%d\n", len(entries)))
	sb.WriteString("Version=2\n")

	return sb.String()
}

func relative(dir, path string) string {
	if dir == "" {
		return path
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
