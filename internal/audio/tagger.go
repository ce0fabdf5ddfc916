package audio

import (
	"os"

	"github.com/bogem/id3v2"

	"github.com/handiism/vasset-downloader/internal/model"
)

// TagEditAction defines how to handle individual ID3 tags.
type TagEditAction int

const (
	// TagEmpty clears the tag value.
	TagEmpty TagEditAction = iota

	// TagModify updates the tag from the media descriptor.
	TagModify

	// TagDoNotModify leaves the existing tag value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags: true,
//	    Artist:     TagModify,      // uploader
//	    Title:      TagModify,      // media title
//	    Year:       TagModify,      // from upload date
//	    Comments:   TagModify,      // source URL
//	    Publisher:  TagDoNotModify, // keep what the backend wrote
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no string tags are modified.
	ModifyTags bool

	// Artist controls the TPE1 (Lead artist) frame.
	Artist TagEditAction

	// AlbumArtist controls the TPE2 (Album artist) frame.
	AlbumArtist TagEditAction

	// Title controls the TIT2 (Title) frame.
	Title TagEditAction

	// Year controls the TYER (Year) frame.
	Year TagEditAction

	// Date controls the TDRC (Recording time) frame (ID3v2.4).
	Date TagEditAction

	// Publisher controls the TPUB frame, set to the platform name.
	Publisher TagEditAction

	// Comments controls the COMM frame, set to the source URL.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration: every field is
// set from the media descriptor.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags:  true,
		Artist:      TagModify,
		AlbumArtist: TagModify,
		Title:       TagModify,
		Year:        TagModify,
		Date:        TagModify,
		Publisher:   TagModify,
		Comments:    TagModify,
	}
}

// Tagger writes ID3 tags to retrieved MP3 files.
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//	err := tagger.SaveTags("/downloads/song.mp3", media, jpegBytes)
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// SaveTags writes ID3 tags describing media to the MP3 file at path.
// artwork is JPEG data for the front cover; nil leaves pictures untouched.
func (t *Tagger) SaveTags(path string, media *model.MediaDescriptor, artwork []byte) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	if t.config.ModifyTags {
		t.updateStringTags(tag, media)
	}

	if artwork != nil {
		t.updateArtwork(tag, artwork)
	}

	return tag.Save()
}

// updateStringTags updates text-based ID3 frames based on configuration.
func (t *Tagger) updateStringTags(tag *id3v2.Tag, media *model.MediaDescriptor) {
	switch t.config.Artist {
	case TagEmpty:
		tag.SetArtist("")
	case TagModify:
		tag.SetArtist(media.Author)
	}

	switch t.config.AlbumArtist {
	case TagEmpty:
		tag.DeleteFrames("TPE2")
	case TagModify:
		if media.Author != "" {
			tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, media.Author)
		}
	}

	switch t.config.Title {
	case TagEmpty:
		tag.SetTitle("")
	case TagModify:
		tag.SetTitle(media.Title)
	}

	year, date := uploadDate(media.UploadDate)

	// Year (TYER) - ID3v2.3
	switch t.config.Year {
	case TagEmpty:
		tag.DeleteFrames("TYER")
	case TagModify:
		if year != "" {
			tag.AddTextFrame("TYER", id3v2.EncodingUTF8, year)
		}
	}

	// Date (TDRC) - ID3v2.4
	switch t.config.Date {
	case TagEmpty:
		tag.DeleteFrames("TDRC")
	case TagModify:
		if date != "" {
			tag.AddTextFrame("TDRC", id3v2.EncodingUTF8, date)
		}
	}

	switch t.config.Publisher {
	case TagEmpty:
		tag.DeleteFrames("TPUB")
	case TagModify:
		if media.Platform != "" {
			tag.AddTextFrame("TPUB", id3v2.EncodingUTF8, media.Platform)
		}
	}

	switch t.config.Comments {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Comments"))
	case TagModify:
		if media.SourceURL != "" {
			tag.DeleteFrames(tag.CommonID("Comments"))
			tag.AddCommentFrame(id3v2.CommentFrame{
				Encoding:    id3v2.EncodingUTF8,
				Language:    "eng",
				Description: "Source",
				Text:        media.SourceURL,
			})
		}
	}
}

// updateArtwork embeds cover art as an attached picture frame.
func (t *Tagger) updateArtwork(tag *id3v2.Tag, artwork []byte) {
	tag.DeleteFrames(tag.CommonID("Attached picture"))

	pic := id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     artwork,
	}
	tag.AddAttachedPicture(pic)
}

// uploadDate splits a YYYYMMDD upload date into "YYYY" and "YYYY-MM-DD".
func uploadDate(s string) (year, date string) {
	if len(s) < 4 || !digits(s[:4]) {
		return "", ""
	}
	year = s[:4]
	if len(s) == 8 && digits(s) {
		return year, s[:4] + "-" + s[4:6] + "-" + s[6:]
	}
	return year, year
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
