package slug

import (
	"context"

	"go.uber.org/zap"

	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/repository"
)

// Resolver assigns routes to named entities.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger.Named("slug")}
}

// Resolve records the route for intent and returns the new current route, or
// nil when nothing changed. A name whose title slug matches the current route
// keeps that route. Otherwise the next free collision id for the owner and
// title slug is taken, the permanent id-suffixed route is recorded and the
// previous current route is retired.
func (r *Resolver) Resolve(ctx context.Context, routes repository.RouteRepository, intent domain.RouteIntent, blockNumber int64, txHash string) (*domain.Route, error) {
	titleSlug := Slugify(intent.Name)
	if titleSlug == "" {
		r.logger.Debug("name has no routable characters",
			zap.String("entity_type", string(intent.EntityType)),
			zap.Int64("entity_id", intent.EntityID))
		return nil, nil
	}

	current, hasCurrent, err := routes.CurrentRoute(ctx, intent.EntityType, intent.EntityID)
	if err != nil {
		return nil, err
	}
	if hasCurrent && current.TitleSlug == titleSlug {
		return nil, nil
	}

	collisionID, err := r.nextCollisionID(ctx, routes, intent, titleSlug)
	if err != nil {
		return nil, err
	}

	legacy := domain.LegacySlug(titleSlug, intent.EntityID)
	legacyTaken, err := routes.SlugTaken(ctx, intent.EntityType, intent.OwnerID, legacy)
	if err != nil {
		return nil, err
	}
	if !legacyTaken {
		if err := routes.InsertRoute(ctx, domain.Route{
			EntityType:  intent.EntityType,
			EntityID:    intent.EntityID,
			OwnerID:     intent.OwnerID,
			Slug:        legacy,
			TitleSlug:   legacy,
			CollisionID: collisionID,
			IsCurrent:   false,
			BlockNumber: blockNumber,
			TxHash:      txHash,
		}); err != nil {
			return nil, err
		}
	}

	if hasCurrent {
		if err := routes.MarkRouteNotCurrent(ctx, intent.EntityType, intent.EntityID); err != nil {
			return nil, err
		}
	}

	route := domain.Route{
		EntityType:  intent.EntityType,
		EntityID:    intent.EntityID,
		OwnerID:     intent.OwnerID,
		Slug:        domain.SlugWithCollision(titleSlug, collisionID),
		TitleSlug:   titleSlug,
		CollisionID: collisionID,
		IsCurrent:   true,
		BlockNumber: blockNumber,
		TxHash:      txHash,
	}
	if err := routes.InsertRoute(ctx, route); err != nil {
		return nil, err
	}

	r.logger.Debug("route assigned",
		zap.String("entity_type", string(route.EntityType)),
		zap.Int64("entity_id", route.EntityID),
		zap.String("slug", route.Slug))
	return &route, nil
}

func (r *Resolver) nextCollisionID(ctx context.Context, routes repository.RouteRepository, intent domain.RouteIntent, titleSlug string) (int, error) {
	existing, err := routes.RoutesByTitleSlug(ctx, intent.EntityType, intent.OwnerID, titleSlug)
	if err != nil {
		return 0, err
	}

	collisionID := 0
	if len(existing) > 0 {
		maxID := 0
		for _, route := range existing {
			if route.CollisionID > maxID {
				maxID = route.CollisionID
			}
		}
		collisionID = maxID + 1
	}

	// A literal name such as "my playlist 2" can already own the slug a
	// collision id would produce.
	for {
		taken, err := routes.SlugTaken(ctx, intent.EntityType, intent.OwnerID, domain.SlugWithCollision(titleSlug, collisionID))
		if err != nil {
			return 0, err
		}
		if !taken {
			return collisionID, nil
		}
		collisionID++
	}
}
