package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entityindexer/internal/domain"
)

const versionColumns = `id, entity_type, entity_id, owner_user_id, properties, is_current, is_delete,
	block_number, tx_index, log_index, block_timestamp, transaction_hash`

// CurrentVersion returns the entity's current row.
func (r *pgBlockTx) CurrentVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+versionColumns+`
		 FROM entity_versions
		 WHERE entity_type = $1 AND entity_id = $2 AND is_current`,
		string(entityType), entityID,
	)
	version, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VersionedEntity{}, false, nil
	}
	if err != nil {
		return domain.VersionedEntity{}, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, true, nil
}

// CurrentVersions returns the current rows for the given ids keyed by id.
func (r *pgBlockTx) CurrentVersions(ctx context.Context, entityType domain.EntityType, entityIDs []int64) (map[int64]domain.VersionedEntity, error) {
	result := make(map[int64]domain.VersionedEntity, len(entityIDs))
	if len(entityIDs) == 0 {
		return result, nil
	}

	rows, err := r.tx.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM entity_versions
		 WHERE entity_type = $1 AND entity_id = ANY($2) AND is_current`,
		string(entityType), entityIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get current versions: %w", err)
	}
	versions, err := collectVersions(rows)
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		result[version.EntityID] = version
	}
	return result, nil
}

// LatestVersion returns the most recent row, including terminal deletes.
func (r *pgBlockTx) LatestVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+versionColumns+`
		 FROM entity_versions
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY block_number DESC, tx_index DESC, log_index DESC
		 LIMIT 1`,
		string(entityType), entityID,
	)
	version, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VersionedEntity{}, false, nil
	}
	if err != nil {
		return domain.VersionedEntity{}, false, fmt.Errorf("failed to get latest version: %w", err)
	}
	return version, true, nil
}

// History lists every version of an entity in ledger order.
func (r *pgBlockTx) History(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.EntityHistory, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM entity_versions
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY block_number, tx_index, log_index`,
		string(entityType), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity history: %w", err)
	}
	versions, err := collectVersions(rows)
	if err != nil {
		return nil, err
	}
	return domain.NewEntityHistory(versions), nil
}

// FindCurrentByProperty filters current rows by JSONB containment.
func (r *pgBlockTx) FindCurrentByProperty(ctx context.Context, entityType domain.EntityType, filter map[string]any) ([]domain.VersionedEntity, error) {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	rows, err := r.tx.Query(ctx,
		`SELECT `+versionColumns+`
		 FROM entity_versions
		 WHERE entity_type = $1 AND is_current AND properties @> $2::jsonb
		 ORDER BY entity_id`,
		string(entityType), filterJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to filter entities by property: %w", err)
	}
	return collectVersions(rows)
}

// ApplyVersion appends version and moves the current flag onto it.
func (r *pgBlockTx) ApplyVersion(ctx context.Context, version domain.VersionedEntity) (domain.VersionedEntity, error) {
	latest, found, err := r.LatestVersion(ctx, version.EntityType, version.EntityID)
	if err != nil {
		return domain.VersionedEntity{}, err
	}
	if found && !latest.Position().Before(version.Position()) {
		return domain.VersionedEntity{}, fmt.Errorf("%w: %s %d at block %d", ErrOutOfOrder, version.EntityType, version.EntityID, version.BlockNumber)
	}

	if _, err := r.tx.Exec(ctx,
		`UPDATE entity_versions SET is_current = FALSE
		 WHERE entity_type = $1 AND entity_id = $2 AND is_current`,
		string(version.EntityType), version.EntityID,
	); err != nil {
		return domain.VersionedEntity{}, fmt.Errorf("failed to clear current version: %w", err)
	}

	version.IsCurrent = !version.IsDelete
	propertiesJSON, err := version.GetPropertiesAsJSONB()
	if err != nil {
		return domain.VersionedEntity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	err = r.tx.QueryRow(ctx,
		`INSERT INTO entity_versions (
			entity_type, entity_id, owner_user_id, properties, is_current, is_delete,
			block_number, tx_index, log_index, block_timestamp, transaction_hash
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		string(version.EntityType),
		version.EntityID,
		version.OwnerUserID,
		propertiesJSON,
		version.IsCurrent,
		version.IsDelete,
		version.BlockNumber,
		version.TxIndex,
		version.LogIndex,
		version.BlockTimestamp,
		version.TxHash,
	).Scan(&version.ID)
	if err != nil {
		return domain.VersionedEntity{}, fmt.Errorf("failed to insert entity version: %w", err)
	}

	return version, nil
}

func collectVersions(rows pgx.Rows) ([]domain.VersionedEntity, error) {
	defer rows.Close()

	versions := []domain.VersionedEntity{}
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity versions: %w", err)
	}
	return versions, nil
}

func scanVersion(row pgx.Row) (domain.VersionedEntity, error) {
	var (
		version        domain.VersionedEntity
		entityType     string
		propertiesJSON []byte
		blockTimestamp time.Time
	)
	if err := row.Scan(
		&version.ID,
		&entityType,
		&version.EntityID,
		&version.OwnerUserID,
		&propertiesJSON,
		&version.IsCurrent,
		&version.IsDelete,
		&version.BlockNumber,
		&version.TxIndex,
		&version.LogIndex,
		&blockTimestamp,
		&version.TxHash,
	); err != nil {
		return domain.VersionedEntity{}, err
	}

	properties, err := domain.FromJSONBProperties(propertiesJSON)
	if err != nil {
		return domain.VersionedEntity{}, fmt.Errorf("failed to decode properties for %s %d: %w", entityType, version.EntityID, err)
	}
	version.EntityType = domain.EntityType(entityType)
	version.Properties = properties
	version.BlockTimestamp = blockTimestamp.UTC()
	return version, nil
}
