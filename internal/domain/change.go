package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RouteIntent asks the slug resolver to route EntityID under Name.
type RouteIntent struct {
	EntityType EntityType
	EntityID   int64
	OwnerID    int64
	Name       string
}

// Change is a validated change ready to be stored.
type Change struct {
	Request     ChangeRequest
	OwnerUserID int64
	Properties  map[string]any
	IsDelete    bool
	Route       *RouteIntent
}

// Version converts the change into the row the store will insert.
func (c Change) Version() VersionedEntity {
	return NewVersion(c.Request, c.OwnerUserID, c.Properties, c.IsDelete)
}

// eventNamespace scopes deterministic change event ids.
var eventNamespace = uuid.MustParse("8f7c2c1e-2b7a-4c53-9d0e-5b1f3c6a9e40")

// ChangeEvent is published to downstream consumers after a block commits.
type ChangeEvent struct {
	ID             uuid.UUID  `json:"id"`
	EntityType     EntityType `json:"entity_type"`
	Action         Action     `json:"action"`
	EntityID       int64      `json:"entity_id"`
	UserID         int64      `json:"user_id"`
	BlockNumber    int64      `json:"block_number"`
	BlockTimestamp time.Time  `json:"block_timestamp"`
	TxHash         string     `json:"tx_hash"`
	LogIndex       int        `json:"log_index"`
}

// NewChangeEvent derives the event for an accepted request. The id is stable
// across re-indexing so consumers can deduplicate.
func NewChangeEvent(req ChangeRequest) ChangeEvent {
	key := req.TxHash + "/" + strconv.Itoa(req.LogIndex)
	return ChangeEvent{
		ID:             uuid.NewSHA1(eventNamespace, []byte(key)),
		EntityType:     req.EntityType,
		Action:         req.Action,
		EntityID:       req.EntityID,
		UserID:         req.ActingUserID,
		BlockNumber:    req.BlockNumber,
		BlockTimestamp: req.BlockTimestamp,
		TxHash:         req.TxHash,
		LogIndex:       req.LogIndex,
	}
}
