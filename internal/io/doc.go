// Package ioutils provides file system and image helpers for retrieved
// downloads.
//
// File names coming from the backend are sanitized before use, and a
// retrieved file never overwrites an existing one:
//
//	f, path, err := ioutils.CreateUnique("/downloads", "Clip.mp4")
//	// path is /downloads/Clip.mp4, or /downloads/Clip (1).mp4 if taken
//
// ImageService resizes thumbnails for the cover art saved next to a
// retrieved file and embedded in audio tags.
package ioutils
