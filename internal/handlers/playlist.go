package handlers

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rpattn/entityindexer/internal/domain"
)

type trackPatch struct {
	Track *int64 `json:"track"`
	Time  *int64 `json:"time"`
}

type contentsPatch struct {
	TrackIDs []trackPatch `json:"track_ids"`
}

type playlistPatch struct {
	Name                 *string        `json:"playlist_name"`
	Description          *string        `json:"description"`
	IsAlbum              *bool          `json:"is_album"`
	IsPrivate            *bool          `json:"is_private"`
	IsImageAutogenerated *bool          `json:"is_image_autogenerated"`
	ImageSizesMultihash  *string        `json:"playlist_image_sizes_multihash"`
	Contents             *contentsPatch `json:"playlist_contents"`
}

// PlaylistHandler applies collection rules. Albums are playlists whose track
// list is fixed at creation.
type PlaylistHandler struct {
	offset int64
}

// NewPlaylistHandler creates a handler accepting ids from offset upwards.
func NewPlaylistHandler(offset int64) *PlaylistHandler {
	return &PlaylistHandler{offset: offset}
}

func (h *PlaylistHandler) EntityType() domain.EntityType {
	return domain.EntityTypePlaylist
}

func (h *PlaylistHandler) ValidateCreate(ctx context.Context, req domain.ChangeRequest, r Reader) (domain.Change, error) {
	if err := requireNewID(ctx, req, r, h.offset); err != nil {
		return domain.Change{}, err
	}
	if !req.Metadata.HasData() {
		return domain.Change{}, domain.Reject("playlist create requires metadata")
	}

	var patch playlistPatch
	if err := decodePatch(req.Metadata.Data, &patch); err != nil {
		return domain.Change{}, err
	}
	if patch.Name == nil || strings.TrimSpace(*patch.Name) == "" {
		return domain.Change{}, domain.Reject("playlist_name is required")
	}

	playlist := domain.Playlist{Contents: domain.PlaylistContents{TrackIDs: []domain.PlaylistTrack{}}}
	if err := applyPlaylistPatch(&playlist, patch); err != nil {
		return domain.Change{}, err
	}

	properties, err := encode(domain.EntityTypePlaylist, playlist)
	if err != nil {
		return domain.Change{}, err
	}
	return domain.Change{
		Request:     req,
		OwnerUserID: req.ActingUserID,
		Properties:  properties,
		Route: &domain.RouteIntent{
			EntityType: domain.EntityTypePlaylist,
			EntityID:   req.EntityID,
			OwnerID:    req.ActingUserID,
			Name:       playlist.Name,
		},
	}, nil
}

func (h *PlaylistHandler) ValidateUpdate(ctx context.Context, req domain.ChangeRequest, current domain.VersionedEntity, r Reader) (domain.Change, error) {
	if !req.Metadata.HasData() {
		return domain.Change{}, domain.Reject("playlist update carries no metadata")
	}

	var patch playlistPatch
	if err := decodePatch(req.Metadata.Data, &patch); err != nil {
		return domain.Change{}, err
	}

	var existing domain.Playlist
	if err := current.DecodeProperties(&existing); err != nil {
		return domain.Change{}, err
	}
	if existing.Contents.TrackIDs == nil {
		existing.Contents.TrackIDs = []domain.PlaylistTrack{}
	}

	if patch.IsAlbum != nil && *patch.IsAlbum != existing.IsAlbum {
		return domain.Change{}, domain.Reject("is_album cannot be changed after creation")
	}
	if patch.IsPrivate != nil && *patch.IsPrivate && !existing.IsPrivate {
		return domain.Change{}, domain.Reject("a public playlist cannot be made private")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Change{}, domain.Reject("playlist_name cannot be empty")
	}

	updated := existing
	if err := applyPlaylistPatch(&updated, patch); err != nil {
		return domain.Change{}, err
	}

	if existing.IsAlbum && !updated.Contents.Equal(existing.Contents) {
		updated.Contents = existing.Contents
		if !fieldsChanged(existing, updated) {
			return domain.Change{}, domain.Reject("album track list cannot be changed")
		}
	}

	properties, err := encode(domain.EntityTypePlaylist, updated)
	if err != nil {
		return domain.Change{}, err
	}
	change := domain.Change{Request: req, OwnerUserID: current.OwnerUserID, Properties: properties}
	if patch.Name != nil {
		change.Route = &domain.RouteIntent{
			EntityType: domain.EntityTypePlaylist,
			EntityID:   req.EntityID,
			OwnerID:    current.OwnerUserID,
			Name:       updated.Name,
		}
	}
	return change, nil
}

func (h *PlaylistHandler) ValidateDelete(ctx context.Context, req domain.ChangeRequest, current domain.VersionedEntity) (domain.Change, error) {
	return deleteChange(req, current), nil
}

// ApplyMetadataSideEffects stamps last_added_to with the block time when the
// set of tracks differs from the previous version.
func (h *PlaylistHandler) ApplyMetadataSideEffects(change *domain.Change, previous *domain.VersionedEntity) {
	setMetadataCID(change)
	if change.IsDelete {
		return
	}

	var next domain.Playlist
	if err := (domain.VersionedEntity{Properties: change.Properties}).DecodeProperties(&next); err != nil {
		return
	}
	var before domain.Playlist
	if previous != nil {
		if err := previous.DecodeProperties(&before); err != nil {
			return
		}
	}
	if sameMembership(before.Contents, next.Contents) {
		return
	}
	change.Properties["last_added_to"] = change.Request.BlockTimestamp.UTC().Format(time.RFC3339Nano)
}

func applyPlaylistPatch(playlist *domain.Playlist, patch playlistPatch) error {
	if patch.Name != nil {
		playlist.Name = *patch.Name
	}
	if patch.Description != nil {
		if utf8.RuneCountInString(*patch.Description) > domain.CharacterLimitDescription {
			return domain.Reject("description exceeds %d characters", domain.CharacterLimitDescription)
		}
		playlist.Description = *patch.Description
	}
	if patch.IsAlbum != nil {
		playlist.IsAlbum = *patch.IsAlbum
	}
	if patch.IsPrivate != nil {
		playlist.IsPrivate = *patch.IsPrivate
	}
	if patch.IsImageAutogenerated != nil {
		playlist.IsImageAutogenerated = *patch.IsImageAutogenerated
	}
	if patch.ImageSizesMultihash != nil {
		playlist.ImageSizesMultihash = *patch.ImageSizesMultihash
	}
	if patch.Contents != nil {
		tracks := make([]domain.PlaylistTrack, 0, len(patch.Contents.TrackIDs))
		for i, entry := range patch.Contents.TrackIDs {
			if entry.Track == nil || entry.Time == nil {
				return domain.Reject("playlist_contents entry %d needs track and time", i)
			}
			tracks = append(tracks, domain.PlaylistTrack{Track: *entry.Track, Time: *entry.Time})
		}
		playlist.Contents = domain.PlaylistContents{TrackIDs: tracks}
	}
	return nil
}

// fieldsChanged compares everything except the track list and its timestamp.
func fieldsChanged(a, b domain.Playlist) bool {
	return a.Name != b.Name ||
		a.Description != b.Description ||
		a.IsPrivate != b.IsPrivate ||
		a.IsImageAutogenerated != b.IsImageAutogenerated ||
		a.ImageSizesMultihash != b.ImageSizesMultihash
}

func sameMembership(a, b domain.PlaylistContents) bool {
	counts := make(map[int64]int, len(a.TrackIDs))
	for _, entry := range a.TrackIDs {
		counts[entry.Track]++
	}
	for _, entry := range b.TrackIDs {
		counts[entry.Track]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}
