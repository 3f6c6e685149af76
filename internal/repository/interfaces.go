package repository

import (
	"context"
	"errors"

	"github.com/rpattn/entityindexer/internal/domain"
)

// ErrOutOfOrder is returned when a version would sort before the entity's latest version.
var ErrOutOfOrder = errors.New("version out of ledger order")

// EntityVersionReader reads versioned entities. Reads inside a block
// transaction observe the block's own earlier writes.
type EntityVersionReader interface {
	CurrentVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error)
	CurrentVersions(ctx context.Context, entityType domain.EntityType, entityIDs []int64) (map[int64]domain.VersionedEntity, error)
	LatestVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error)
	History(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.EntityHistory, error)
	FindCurrentByProperty(ctx context.Context, entityType domain.EntityType, filter map[string]any) ([]domain.VersionedEntity, error)
}

// EntityVersionWriter appends versions.
type EntityVersionWriter interface {
	// ApplyVersion inserts version and, in the same transaction, clears the
	// current flag of the entity's previous current row.
	ApplyVersion(ctx context.Context, version domain.VersionedEntity) (domain.VersionedEntity, error)
}

// RouteRepository stores slug routes.
type RouteRepository interface {
	CurrentRoute(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.Route, bool, error)
	RoutesByTitleSlug(ctx context.Context, entityType domain.EntityType, ownerID int64, titleSlug string) ([]domain.Route, error)
	RoutesForEntity(ctx context.Context, entityType domain.EntityType, entityID int64) ([]domain.Route, error)
	SlugTaken(ctx context.Context, entityType domain.EntityType, ownerID int64, slug string) (bool, error)
	InsertRoute(ctx context.Context, route domain.Route) error
	MarkRouteNotCurrent(ctx context.Context, entityType domain.EntityType, entityID int64) error
}

// GrantReader reads delegated authorizations.
type GrantReader interface {
	GetGrant(ctx context.Context, granteeAddress string, userID int64) (domain.Grant, bool, error)
}

// BlockRepository tracks committed blocks.
type BlockRepository interface {
	RecordBlock(ctx context.Context, block domain.IndexedBlock) error
	LastIndexedBlock(ctx context.Context) (domain.IndexedBlock, bool, error)
}

// IngestionLogRepository keeps the requests of a block that were not applied.
type IngestionLogRepository interface {
	RecordIngestionLog(ctx context.Context, blockNumber int64, entries []domain.IngestionLogEntry) error
	IngestionLog(ctx context.Context, blockNumber int64) ([]domain.IngestionLogEntry, error)
}

// BlockTx is the unit of work for one block.
type BlockTx interface {
	EntityVersionReader
	EntityVersionWriter
	RouteRepository
	GrantReader
	BlockRepository
	IngestionLogRepository
}

// Store opens block transactions.
type Store interface {
	// WithBlockTx commits when fn returns nil and rolls back otherwise.
	WithBlockTx(ctx context.Context, fn func(BlockTx) error) error
	// WithDiscardedTx always rolls back; used for dry runs and reads.
	WithDiscardedTx(ctx context.Context, fn func(BlockTx) error) error
	// UpsertGrant is the write path of the delegated-authorization collaborator.
	UpsertGrant(ctx context.Context, grant domain.Grant) error
}
