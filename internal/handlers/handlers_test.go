package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/repository"
	"github.com/rpattn/entityindexer/internal/repository/memory"
)

const (
	userID     int64 = 3000001
	playlistID int64 = 400001
	wallet           = "0x00000000000000000000000000000000000000aa"
)

var blockTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	store *memory.Store
	block int64
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, store: memory.NewStore(), block: 1}
}

func (f *fixture) request(entityType domain.EntityType, action domain.Action, entityID int64, data map[string]any) domain.ChangeRequest {
	f.block++
	return domain.ChangeRequest{
		EntityType:     entityType,
		EntityID:       entityID,
		ActingUserID:   userID,
		Action:         action,
		Metadata:       domain.MetadataPayload{Data: data},
		Signer:         wallet,
		BlockNumber:    f.block,
		BlockTimestamp: blockTime.Add(time.Duration(f.block) * time.Second),
		TxHash:         "0xtx",
	}
}

// run validates req against the store and, when accepted, stores the result.
func (f *fixture) run(h Handler, req domain.ChangeRequest) (domain.Change, error) {
	ctx := context.Background()
	var change domain.Change
	err := f.store.WithBlockTx(ctx, func(tx repository.BlockTx) error {
		current, hasCurrent, err := tx.CurrentVersion(ctx, req.EntityType, req.EntityID)
		if err != nil {
			return err
		}
		var previous *domain.VersionedEntity
		if hasCurrent {
			previous = &current
		}

		switch req.Action {
		case domain.ActionCreate:
			change, err = h.ValidateCreate(ctx, req, tx)
		case domain.ActionUpdate:
			require.True(f.t, hasCurrent, "update fixture needs a current row")
			change, err = h.ValidateUpdate(ctx, req, current, tx)
		case domain.ActionDelete:
			require.True(f.t, hasCurrent, "delete fixture needs a current row")
			change, err = h.ValidateDelete(ctx, req, current)
		}
		if err != nil {
			return err
		}
		h.ApplyMetadataSideEffects(&change, previous)
		_, err = tx.ApplyVersion(ctx, change.Version())
		return err
	})
	return change, err
}

func (f *fixture) current(entityType domain.EntityType, entityID int64) domain.VersionedEntity {
	ctx := context.Background()
	var version domain.VersionedEntity
	require.NoError(f.t, f.store.WithDiscardedTx(ctx, func(tx repository.BlockTx) error {
		v, ok, err := tx.CurrentVersion(ctx, entityType, entityID)
		require.True(f.t, ok)
		version = v
		return err
	}))
	return version
}

func requireRejected(t *testing.T, err error, contains string) {
	t.Helper()
	rejection, ok := domain.AsRejection(err)
	require.True(t, ok, "expected rejection, got %v", err)
	assert.Contains(t, rejection.Reason, contains)
}

func TestRegistry(t *testing.T) {
	registry := DefaultRegistry(DefaultOffsets())

	h, ok := registry.Lookup(domain.EntityTypePlaylist)
	require.True(t, ok)
	assert.Equal(t, domain.EntityTypePlaylist, h.EntityType())
	assert.Equal(t, []domain.EntityType{domain.EntityTypePlaylist, domain.EntityTypeUser}, registry.EntityTypes())

	_, ok = NewRegistry().Lookup(domain.EntityTypeUser)
	assert.False(t, ok)
}

func TestUserCreate(t *testing.T) {
	f := newFixture(t)
	h := NewUserHandler(domain.DefaultUserIDOffset)

	change, err := f.run(h, f.request(domain.EntityTypeUser, domain.ActionCreate, userID, map[string]any{"handle": "Alice", "name": "Alice A"}))
	require.NoError(t, err)
	assert.Equal(t, userID, change.OwnerUserID)

	current := f.current(domain.EntityTypeUser, userID)
	assert.Equal(t, wallet, current.Properties["wallet"])
	assert.Equal(t, "Alice", current.Properties["handle"])
	assert.Equal(t, "alice", current.Properties["handle_lc"])
}

func TestUserCreateRules(t *testing.T) {
	f := newFixture(t)
	h := NewUserHandler(domain.DefaultUserIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypeUser, domain.ActionCreate, userID, map[string]any{"handle": "alice"}))
	require.NoError(t, err)

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionCreate, userID, nil))
	requireRejected(t, err, "already exists")

	below := f.request(domain.EntityTypeUser, domain.ActionCreate, 12, nil)
	below.ActingUserID = 12
	_, err = f.run(h, below)
	requireRejected(t, err, "below the minimum")

	sameWallet := f.request(domain.EntityTypeUser, domain.ActionCreate, userID+1, nil)
	sameWallet.ActingUserID = userID + 1
	_, err = f.run(h, sameWallet)
	requireRejected(t, err, "already registered")

	takenHandle := f.request(domain.EntityTypeUser, domain.ActionCreate, userID+2, map[string]any{"handle": "ALICE"})
	takenHandle.ActingUserID = userID + 2
	takenHandle.Signer = "0x00000000000000000000000000000000000000bb"
	_, err = f.run(h, takenHandle)
	requireRejected(t, err, "already taken")

	badHandle := f.request(domain.EntityTypeUser, domain.ActionCreate, userID+3, map[string]any{"handle": "no spaces"})
	badHandle.ActingUserID = userID + 3
	badHandle.Signer = "0x00000000000000000000000000000000000000cc"
	_, err = f.run(h, badHandle)
	requireRejected(t, err, "handle")
}

func TestUserUpdateMergesPresentKeys(t *testing.T) {
	f := newFixture(t)
	h := NewUserHandler(domain.DefaultUserIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypeUser, domain.ActionCreate, userID, map[string]any{"handle": "alice", "bio": "hello"}))
	require.NoError(t, err)

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionUpdate, userID, map[string]any{"name": "Alice"}))
	require.NoError(t, err)

	current := f.current(domain.EntityTypeUser, userID)
	assert.Equal(t, "Alice", current.Properties["name"])
	assert.Equal(t, "hello", current.Properties["bio"])
	assert.Equal(t, "alice", current.Properties["handle"])
}

func TestUserUpdateRules(t *testing.T) {
	f := newFixture(t)
	h := NewUserHandler(domain.DefaultUserIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypeUser, domain.ActionCreate, userID, map[string]any{"handle": "alice"}))
	require.NoError(t, err)

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionUpdate, userID, map[string]any{"handle": "bob"}))
	requireRejected(t, err, "cannot be changed")

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionUpdate, userID, map[string]any{"bio": strings.Repeat("x", 257)}))
	requireRejected(t, err, "bio")

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionUpdate, userID, map[string]any{"name": strings.Repeat("x", 33)}))
	requireRejected(t, err, "name")

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionUpdate, userID, nil))
	requireRejected(t, err, "no metadata")

	_, err = f.run(h, f.request(domain.EntityTypeUser, domain.ActionUpdate, userID, map[string]any{"bio": 42}))
	requireRejected(t, err, "invalid metadata")
}

func TestPlaylistCreate(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)

	req := f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{
		"playlist_name": "Road Trip",
		"playlist_contents": map[string]any{"track_ids": []any{
			map[string]any{"track": 1, "time": 1700000000},
		}},
	})
	req.Metadata.CID = "QmPlaylist"
	change, err := f.run(h, req)
	require.NoError(t, err)
	require.NotNil(t, change.Route)
	assert.Equal(t, "Road Trip", change.Route.Name)
	assert.Equal(t, userID, change.Route.OwnerID)

	current := f.current(domain.EntityTypePlaylist, playlistID)
	assert.Equal(t, userID, current.OwnerUserID)
	assert.Equal(t, "QmPlaylist", current.Properties["metadata_multihash"])
	assert.Equal(t, req.BlockTimestamp.Format(time.RFC3339Nano), current.Properties["last_added_to"])
}

func TestPlaylistCreateRules(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)

	_, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, nil))
	requireRejected(t, err, "requires metadata")

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{"playlist_name": "  "}))
	requireRejected(t, err, "playlist_name")

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, 10, map[string]any{"playlist_name": "x"}))
	requireRejected(t, err, "below the minimum")

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{
		"playlist_name": "x",
		"description":   strings.Repeat("d", 1001),
	}))
	requireRejected(t, err, "description")

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{
		"playlist_name":     "x",
		"playlist_contents": map[string]any{"track_ids": []any{map[string]any{"track": 1}}},
	}))
	requireRejected(t, err, "needs track and time")
}

func TestPlaylistUpdateRules(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{"playlist_name": "Mix"}))
	require.NoError(t, err)

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{"is_album": true}))
	requireRejected(t, err, "is_album")

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{"is_private": true}))
	requireRejected(t, err, "private")

	change, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{"description": "new"}))
	require.NoError(t, err)
	assert.Nil(t, change.Route, "no name in metadata means no route change")
	assert.Equal(t, "new", f.current(domain.EntityTypePlaylist, playlistID).Properties["description"])
	assert.Equal(t, "Mix", f.current(domain.EntityTypePlaylist, playlistID).Properties["playlist_name"])
}

func TestPrivatePlaylistCanBecomePublic(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{"playlist_name": "Mix", "is_private": true}))
	require.NoError(t, err)

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{"is_private": false}))
	require.NoError(t, err)
	assert.Equal(t, false, f.current(domain.EntityTypePlaylist, playlistID).Properties["is_private"])
}

func TestAlbumTrackListIsImmutable(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)
	tracks := map[string]any{"track_ids": []any{map[string]any{"track": 1, "time": 1}}}
	_, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{
		"playlist_name":     "LP",
		"is_album":          true,
		"playlist_contents": tracks,
	}))
	require.NoError(t, err)

	changed := map[string]any{"track_ids": []any{map[string]any{"track": 2, "time": 2}}}
	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{"playlist_contents": changed}))
	requireRejected(t, err, "album track list")

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{
		"playlist_contents": changed,
		"description":       "liner notes",
	}))
	require.NoError(t, err)

	current := f.current(domain.EntityTypePlaylist, playlistID)
	assert.Equal(t, "liner notes", current.Properties["description"])
	var album domain.Playlist
	require.NoError(t, current.DecodeProperties(&album))
	require.Len(t, album.Contents.TrackIDs, 1)
	assert.Equal(t, int64(1), album.Contents.TrackIDs[0].Track)
}

func TestLastAddedToTracksMembership(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{"playlist_name": "Mix"}))
	require.NoError(t, err)
	_, hasStamp := f.current(domain.EntityTypePlaylist, playlistID).Properties["last_added_to"]
	assert.False(t, hasStamp)

	add := f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{
		"playlist_contents": map[string]any{"track_ids": []any{map[string]any{"track": 5, "time": 9}}},
	})
	_, err = f.run(h, add)
	require.NoError(t, err)
	stamp := f.current(domain.EntityTypePlaylist, playlistID).Properties["last_added_to"]
	assert.Equal(t, add.BlockTimestamp.Format(time.RFC3339Nano), stamp)

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionUpdate, playlistID, map[string]any{"description": "same tracks"}))
	require.NoError(t, err)
	assert.Equal(t, stamp, f.current(domain.EntityTypePlaylist, playlistID).Properties["last_added_to"])
}

func TestDeleteIsTerminal(t *testing.T) {
	f := newFixture(t)
	h := NewPlaylistHandler(domain.DefaultPlaylistIDOffset)
	_, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{"playlist_name": "Mix"}))
	require.NoError(t, err)

	change, err := f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionDelete, playlistID, nil))
	require.NoError(t, err)
	assert.True(t, change.IsDelete)

	_, err = f.run(h, f.request(domain.EntityTypePlaylist, domain.ActionCreate, playlistID, map[string]any{"playlist_name": "Again"}))
	requireRejected(t, err, "deleted")
}
