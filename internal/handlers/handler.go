// Package handlers holds the per-entity-type business rules applied to
// change requests.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rpattn/entityindexer/internal/domain"
)

// Reader is the read side of the entity store visible to handlers. Reads see
// writes made earlier in the same block.
type Reader interface {
	CurrentVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error)
	LatestVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error)
	FindCurrentByProperty(ctx context.Context, entityType domain.EntityType, filter map[string]any) ([]domain.VersionedEntity, error)
}

// Handler validates change requests for one entity type. Business-rule
// violations are returned as *domain.RejectionError; any other error is a
// storage failure.
type Handler interface {
	EntityType() domain.EntityType
	ValidateCreate(ctx context.Context, req domain.ChangeRequest, r Reader) (domain.Change, error)
	ValidateUpdate(ctx context.Context, req domain.ChangeRequest, current domain.VersionedEntity, r Reader) (domain.Change, error)
	ValidateDelete(ctx context.Context, req domain.ChangeRequest, current domain.VersionedEntity) (domain.Change, error)
	ApplyMetadataSideEffects(change *domain.Change, previous *domain.VersionedEntity)
}

// Offsets are the lowest ids accepted for each entity type.
type Offsets struct {
	User     int64
	Playlist int64
}

// DefaultOffsets returns the production id offsets.
func DefaultOffsets() Offsets {
	return Offsets{User: domain.DefaultUserIDOffset, Playlist: domain.DefaultPlaylistIDOffset}
}

// Registry maps entity types to their handler.
type Registry struct {
	handlers map[domain.EntityType]Handler
}

// NewRegistry creates a registry holding handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[domain.EntityType]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// DefaultRegistry registers the User and Playlist handlers.
func DefaultRegistry(offsets Offsets) *Registry {
	return NewRegistry(NewUserHandler(offsets.User), NewPlaylistHandler(offsets.Playlist))
}

// Register binds h to its entity type, replacing any previous handler.
func (r *Registry) Register(h Handler) {
	r.handlers[h.EntityType()] = h
}

// Lookup returns the handler for entityType.
func (r *Registry) Lookup(entityType domain.EntityType) (Handler, bool) {
	h, ok := r.handlers[entityType]
	return h, ok
}

// EntityTypes lists the registered types in a stable order.
func (r *Registry) EntityTypes() []domain.EntityType {
	types := make([]domain.EntityType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// requireNewID rejects ids below offset and ids that were ever used, so a
// deleted id can never be created again.
func requireNewID(ctx context.Context, req domain.ChangeRequest, r Reader, offset int64) error {
	if req.EntityID < offset {
		return domain.Reject("%s id %d is below the minimum %d", req.EntityType, req.EntityID, offset)
	}
	latest, found, err := r.LatestVersion(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return err
	}
	if found {
		if latest.IsDelete {
			return domain.Reject("%s %d was deleted and cannot be recreated", req.EntityType, req.EntityID)
		}
		return domain.Reject("%s %d already exists", req.EntityType, req.EntityID)
	}
	return nil
}

// decodePatch copies the metadata document into a patch struct whose pointer
// fields record which keys were present.
func decodePatch(data map[string]any, patch any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return domain.Reject("invalid metadata: %v", err)
	}
	if err := json.Unmarshal(raw, patch); err != nil {
		return domain.Reject("invalid metadata: %v", err)
	}
	return nil
}

func deleteChange(req domain.ChangeRequest, current domain.VersionedEntity) domain.Change {
	return domain.Change{
		Request:     req,
		OwnerUserID: current.OwnerUserID,
		Properties:  current.Properties,
		IsDelete:    true,
	}
}

func encode(entityType domain.EntityType, entity any) (map[string]any, error) {
	properties, err := domain.EncodeProperties(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", entityType, err)
	}
	return properties, nil
}

func setMetadataCID(change *domain.Change) {
	if cid := change.Request.Metadata.CID; cid != "" && !change.IsDelete {
		if change.Properties == nil {
			change.Properties = map[string]any{}
		}
		change.Properties["metadata_multihash"] = cid
	}
}
