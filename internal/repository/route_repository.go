package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entityindexer/internal/domain"
)

const routeColumns = `entity_type, entity_id, owner_id, slug, title_slug, collision_id, is_current, block_number, transaction_hash`

func (r *pgBlockTx) CurrentRoute(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.Route, bool, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+routeColumns+`
		 FROM routes
		 WHERE entity_type = $1 AND entity_id = $2 AND is_current`,
		string(entityType), entityID,
	)
	route, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Route{}, false, nil
	}
	if err != nil {
		return domain.Route{}, false, fmt.Errorf("failed to get current route: %w", err)
	}
	return route, true, nil
}

// RoutesByTitleSlug lists every route, current or not, sharing an owner and title slug.
func (r *pgBlockTx) RoutesByTitleSlug(ctx context.Context, entityType domain.EntityType, ownerID int64, titleSlug string) ([]domain.Route, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+routeColumns+`
		 FROM routes
		 WHERE entity_type = $1 AND owner_id = $2 AND title_slug = $3
		 ORDER BY collision_id, id`,
		string(entityType), ownerID, titleSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes by title slug: %w", err)
	}
	return collectRoutes(rows)
}

func (r *pgBlockTx) RoutesForEntity(ctx context.Context, entityType domain.EntityType, entityID int64) ([]domain.Route, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+routeColumns+`
		 FROM routes
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY id`,
		string(entityType), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes for entity: %w", err)
	}
	return collectRoutes(rows)
}

func (r *pgBlockTx) SlugTaken(ctx context.Context, entityType domain.EntityType, ownerID int64, slug string) (bool, error) {
	var taken bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM routes WHERE entity_type = $1 AND owner_id = $2 AND slug = $3
		 )`,
		string(entityType), ownerID, slug,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return taken, nil
}

func (r *pgBlockTx) InsertRoute(ctx context.Context, route domain.Route) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO routes (`+routeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(route.EntityType),
		route.EntityID,
		route.OwnerID,
		route.Slug,
		route.TitleSlug,
		route.CollisionID,
		route.IsCurrent,
		route.BlockNumber,
		route.TxHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert route %q: %w", route.Slug, err)
	}
	return nil
}

func (r *pgBlockTx) MarkRouteNotCurrent(ctx context.Context, entityType domain.EntityType, entityID int64) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE routes SET is_current = FALSE
		 WHERE entity_type = $1 AND entity_id = $2 AND is_current`,
		string(entityType), entityID,
	)
	if err != nil {
		return fmt.Errorf("failed to retire current route: %w", err)
	}
	return nil
}

func collectRoutes(rows pgx.Rows) ([]domain.Route, error) {
	defer rows.Close()

	routes := []domain.Route{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routes: %w", err)
	}
	return routes, nil
}

func scanRoute(row pgx.Row) (domain.Route, error) {
	var (
		route      domain.Route
		entityType string
	)
	err := row.Scan(
		&entityType,
		&route.EntityID,
		&route.OwnerID,
		&route.Slug,
		&route.TitleSlug,
		&route.CollisionID,
		&route.IsCurrent,
		&route.BlockNumber,
		&route.TxHash,
	)
	route.EntityType = domain.EntityType(entityType)
	return route, err
}
