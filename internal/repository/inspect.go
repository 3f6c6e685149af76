package repository

import (
	"context"

	"github.com/rpattn/entityindexer/internal/domain"
)

// Inspection is everything stored about one entity.
type Inspection struct {
	EntityType domain.EntityType       `json:"entity_type"`
	EntityID   int64                   `json:"entity_id"`
	History    domain.EntityHistory    `json:"history"`
	Current    *domain.VersionedEntity `json:"current,omitempty"`
	Routes     []domain.Route          `json:"routes"`
}

// Inspect reads the history and routes of an entity without writing.
func Inspect(ctx context.Context, store Store, entityType domain.EntityType, entityID int64) (Inspection, error) {
	inspection := Inspection{EntityType: entityType, EntityID: entityID}
	err := store.WithDiscardedTx(ctx, func(tx BlockTx) error {
		history, err := tx.History(ctx, entityType, entityID)
		if err != nil {
			return err
		}
		routes, err := tx.RoutesForEntity(ctx, entityType, entityID)
		if err != nil {
			return err
		}
		inspection.History = history
		inspection.Routes = routes
		if current, ok := history.Current(); ok {
			inspection.Current = &current
		}
		return nil
	})
	return inspection, err
}
