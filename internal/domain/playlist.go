package domain

import "time"

const (
	// DefaultPlaylistIDOffset is the first id reserved for playlists.
	DefaultPlaylistIDOffset int64 = 400_000

	CharacterLimitDescription = 1000
)

// PlaylistTrack is one membership entry of a playlist.
type PlaylistTrack struct {
	Track int64 `json:"track"`
	Time  int64 `json:"time"`
}

// PlaylistContents is the ordered track list.
type PlaylistContents struct {
	TrackIDs []PlaylistTrack `json:"track_ids"`
}

// Equal compares membership including order and insertion times.
func (c PlaylistContents) Equal(other PlaylistContents) bool {
	if len(c.TrackIDs) != len(other.TrackIDs) {
		return false
	}
	for i := range c.TrackIDs {
		if c.TrackIDs[i] != other.TrackIDs[i] {
			return false
		}
	}
	return true
}

// Playlist is the collection entity. Albums are playlists with IsAlbum set.
type Playlist struct {
	Name                 string           `json:"playlist_name"`
	Description          string           `json:"description"`
	IsAlbum              bool             `json:"is_album"`
	IsPrivate            bool             `json:"is_private"`
	IsImageAutogenerated bool             `json:"is_image_autogenerated"`
	ImageSizesMultihash  string           `json:"playlist_image_sizes_multihash,omitempty"`
	Contents             PlaylistContents `json:"playlist_contents"`
	LastAddedTo          *time.Time       `json:"last_added_to,omitempty"`
	MetadataCID          string           `json:"metadata_multihash,omitempty"`
}
