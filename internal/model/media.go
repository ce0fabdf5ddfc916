package model

import (
	"sort"
	"strings"
)

// MediaKind is the kind of content a FormatVariant delivers.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaVideo
	MediaAudio
)

// String returns the lower-case name of the kind.
func (k MediaKind) String() string {
	switch k {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// MediaDescriptor is the normalized result of parsing a source URL.
//
// A MediaDescriptor is treated as immutable once the backend returns it.
// The controller keeps one for the duration of a parse-to-download cycle
// and drops it on reset.
type MediaDescriptor struct {
	// SourceURL is the URL the user asked to parse. The backend does not
	// echo it back, so the client records it.
	SourceURL string

	VideoID     string
	Platform    string
	Title       string
	Description string
	Author      string

	// UploadDate is the platform's upload date, usually YYYYMMDD.
	UploadDate string
	ViewCount  int64

	// Thumbnail is the thumbnail image URL. Empty when unavailable.
	Thumbnail string

	// Duration is the media length in seconds.
	Duration int64

	// Formats lists the deliverable encodings in backend order.
	Formats []FormatVariant
}

// FormatVariant is one deliverable encoding of a MediaDescriptor.
//
// FormatID is opaque and unique within its descriptor; it is the key sent
// back to the backend when a specific format is requested.
type FormatVariant struct {
	FormatID  string
	Quality   string
	Extension string
	FileSize  int64

	Height int
	Width  int
	FPS    float64

	VideoCodec string
	AudioCodec string

	// VideoBitrate and AudioBitrate are in kbps, SampleRate in Hz.
	VideoBitrate float64
	AudioBitrate float64
	SampleRate   int
}

// Kind derives the media kind from the codecs.
//
// A variant with a video codec is a video variant whether or not it also
// carries audio. A variant with only an audio codec is an audio variant.
func (f FormatVariant) Kind() MediaKind {
	if hasCodec(f.VideoCodec) {
		return MediaVideo
	}
	if hasCodec(f.AudioCodec) {
		return MediaAudio
	}
	return MediaUnknown
}

// Resolution returns "WxH", "Hp" or an empty string.
func (f FormatVariant) Resolution() string {
	switch {
	case f.Width > 0 && f.Height > 0:
		return itoa(f.Width) + "×" + itoa(f.Height)
	case f.Height > 0:
		return itoa(f.Height) + "p"
	default:
		return ""
	}
}

func hasCodec(codec string) bool {
	codec = strings.TrimSpace(codec)
	return codec != "" && codec != "none"
}

// VideoFormats returns the video variants sorted by height, highest first.
// Among equal heights mp4 containers come first.
func (m *MediaDescriptor) VideoFormats() []FormatVariant {
	out := m.filter(MediaVideo)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Height != out[j].Height {
			return out[i].Height > out[j].Height
		}
		return out[i].Extension == "mp4" && out[j].Extension != "mp4"
	})
	return out
}

// AudioFormats returns the audio-only variants sorted by bitrate, highest first.
func (m *MediaDescriptor) AudioFormats() []FormatVariant {
	out := m.filter(MediaAudio)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AudioBitrate > out[j].AudioBitrate
	})
	return out
}

// FindFormat looks up a variant by its format identifier.
func (m *MediaDescriptor) FindFormat(id string) (FormatVariant, bool) {
	for _, f := range m.Formats {
		if f.FormatID == id {
			return f, true
		}
	}
	return FormatVariant{}, false
}

// DefaultKind returns video when any video variant exists, audio when only
// audio variants exist, and video otherwise.
func (m *MediaDescriptor) DefaultKind() DownloadKind {
	hasAudio := false
	for _, f := range m.Formats {
		switch f.Kind() {
		case MediaVideo:
			return KindVideo
		case MediaAudio:
			hasAudio = true
		}
	}
	if hasAudio {
		return KindAudio
	}
	return KindVideo
}

func (m *MediaDescriptor) filter(kind MediaKind) []FormatVariant {
	var out []FormatVariant
	for _, f := range m.Formats {
		if f.Kind() == kind {
			out = append(out, f)
		}
	}
	return out
}
