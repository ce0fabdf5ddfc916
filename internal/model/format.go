package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

func itoa(n int) string { return strconv.Itoa(n) }

// FormatDuration formats seconds as MM:SS, or H:MM:SS for an hour or more.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatFileSize formats a byte count with binary units, e.g. "1.5 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	size := float64(bytes) / math.Pow(1024, float64(i))
	if i == 0 {
		return fmt.Sprintf("%.0f %s", size, units[i])
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}

// FormatBitrate formats kbps as "128kbps" or "2.5Mbps". Zero gives "".
func FormatBitrate(kbps float64) string {
	switch {
	case kbps <= 0:
		return ""
	case kbps < 1000:
		return fmt.Sprintf("%dkbps", int(math.Round(kbps)))
	default:
		return fmt.Sprintf("%.1fMbps", kbps/1000)
	}
}

// CodecDisplayName shortens codec identifiers such as "avc1.64001F" to "H.264".
func CodecDisplayName(codec string) string {
	switch {
	case codec == "" || codec == "none":
		return ""
	case strings.HasPrefix(codec, "avc1"):
		return "H.264"
	case strings.HasPrefix(codec, "av01"):
		return "AV1"
	case codec == "vp9" || strings.HasPrefix(codec, "vp09"):
		return "VP9"
	case codec == "opus":
		return "Opus"
	case strings.HasPrefix(codec, "mp4a"):
		return "AAC"
	case strings.HasPrefix(codec, "vp8"):
		return "VP8"
	}
	return strings.ToUpper(codec)
}
