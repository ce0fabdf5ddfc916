// Package audio provides post-processing for retrieved audio files and
// playlists of batch downloads.
//
// # ID3 Tagging
//
// Use the Tagger to write ID3 tags to MP3 files:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	err := tagger.SaveTags(path, media, coverJPEG)
//
// The tagger supports:
//   - Artist, Album Artist (uploader)
//   - Title
//   - Year and date (from the upload date)
//   - Publisher (platform) and a comment with the source URL
//   - Cover Art (embedded in MP3)
//
// # Playlist Generation
//
//	creator := audio.NewPlaylistCreator(audio.FormatM3U, true) // extended M3U
//	content := creator.CreatePlaylist(dir, entries)
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
package audio
