// Package memory provides an in-process repository.Store used by tests and
// by dry runs started with an empty store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/repository"
)

type state struct {
	versions []domain.VersionedEntity
	routes   []domain.Route
	grants   map[string]domain.Grant
	blocks   []domain.IndexedBlock
	logs     []domain.IngestionLogEntry
	nextID   int64
}

func (s *state) clone() *state {
	next := &state{
		versions: make([]domain.VersionedEntity, len(s.versions)),
		routes:   make([]domain.Route, len(s.routes)),
		grants:   make(map[string]domain.Grant, len(s.grants)),
		blocks:   make([]domain.IndexedBlock, len(s.blocks)),
		logs:     make([]domain.IngestionLogEntry, len(s.logs)),
		nextID:   s.nextID,
	}
	copy(next.versions, s.versions)
	copy(next.logs, s.logs)
	copy(next.routes, s.routes)
	copy(next.blocks, s.blocks)
	for k, v := range s.grants {
		next.grants[k] = v
	}
	return next
}

// Store keeps all rows in memory. Each transaction works on a private copy
// that replaces the shared state on commit.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: &state{grants: make(map[string]domain.Grant)}}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) WithBlockTx(ctx context.Context, fn func(repository.BlockTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &blockTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.state = tx.state
	return nil
}

func (s *Store) WithDiscardedTx(ctx context.Context, fn func(repository.BlockTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&blockTx{state: s.state.clone()})
}

func (s *Store) UpsertGrant(ctx context.Context, grant domain.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant.GranteeAddress = strings.ToLower(grant.GranteeAddress)
	if grant.Scopes == nil {
		grant.Scopes = []string{}
	}
	s.state.grants[grantKey(grant.GranteeAddress, grant.UserID)] = grant
	return nil
}

// Versions returns every stored version ordered by insertion.
func (s *Store) Versions() []domain.VersionedEntity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.VersionedEntity, len(s.state.versions))
	copy(out, s.state.versions)
	return out
}

// Routes returns every stored route ordered by insertion.
func (s *Store) Routes() []domain.Route {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Route, len(s.state.routes))
	copy(out, s.state.routes)
	return out
}

// Blocks returns the recorded block checkpoints.
func (s *Store) Blocks() []domain.IndexedBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.IndexedBlock, len(s.state.blocks))
	copy(out, s.state.blocks)
	return out
}

// IngestionLog returns every recorded skipped-request entry.
func (s *Store) IngestionLog() []domain.IngestionLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.IngestionLogEntry, len(s.state.logs))
	copy(out, s.state.logs)
	return out
}

func grantKey(address string, userID int64) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(address), userID)
}

type blockTx struct {
	state *state
}

func (t *blockTx) CurrentVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error) {
	for i := len(t.state.versions) - 1; i >= 0; i-- {
		v := t.state.versions[i]
		if v.EntityType == entityType && v.EntityID == entityID && v.IsCurrent {
			return cloneVersion(v), true, nil
		}
	}
	return domain.VersionedEntity{}, false, nil
}

func (t *blockTx) CurrentVersions(ctx context.Context, entityType domain.EntityType, entityIDs []int64) (map[int64]domain.VersionedEntity, error) {
	result := make(map[int64]domain.VersionedEntity, len(entityIDs))
	for _, id := range entityIDs {
		version, ok, _ := t.CurrentVersion(ctx, entityType, id)
		if ok {
			result[id] = version
		}
	}
	return result, nil
}

func (t *blockTx) LatestVersion(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.VersionedEntity, bool, error) {
	history, _ := t.History(ctx, entityType, entityID)
	latest, ok := history.Latest()
	return latest, ok, nil
}

func (t *blockTx) History(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.EntityHistory, error) {
	var versions []domain.VersionedEntity
	for _, v := range t.state.versions {
		if v.EntityType == entityType && v.EntityID == entityID {
			versions = append(versions, cloneVersion(v))
		}
	}
	return domain.NewEntityHistory(versions), nil
}

// FindCurrentByProperty matches top-level keys with JSON equality, the subset
// of JSONB containment the handlers rely on.
func (t *blockTx) FindCurrentByProperty(ctx context.Context, entityType domain.EntityType, filter map[string]any) ([]domain.VersionedEntity, error) {
	normalized, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	matches := []domain.VersionedEntity{}
	for _, v := range t.state.versions {
		if v.EntityType != entityType || !v.IsCurrent {
			continue
		}
		if containsAll(v.Properties, normalized) {
			matches = append(matches, cloneVersion(v))
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].EntityID < matches[j].EntityID })
	return matches, nil
}

func (t *blockTx) ApplyVersion(ctx context.Context, version domain.VersionedEntity) (domain.VersionedEntity, error) {
	latest, found, _ := t.LatestVersion(ctx, version.EntityType, version.EntityID)
	if found && !latest.Position().Before(version.Position()) {
		return domain.VersionedEntity{}, fmt.Errorf("%w: %s %d at block %d", repository.ErrOutOfOrder, version.EntityType, version.EntityID, version.BlockNumber)
	}

	properties, err := normalize(version.Properties)
	if err != nil {
		return domain.VersionedEntity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	for i := range t.state.versions {
		v := &t.state.versions[i]
		if v.EntityType == version.EntityType && v.EntityID == version.EntityID && v.IsCurrent {
			v.IsCurrent = false
		}
	}

	t.state.nextID++
	version.ID = t.state.nextID
	version.Properties = properties
	version.IsCurrent = !version.IsDelete
	version.BlockTimestamp = version.BlockTimestamp.UTC()
	t.state.versions = append(t.state.versions, version)
	return cloneVersion(version), nil
}

func (t *blockTx) CurrentRoute(ctx context.Context, entityType domain.EntityType, entityID int64) (domain.Route, bool, error) {
	for _, r := range t.state.routes {
		if r.EntityType == entityType && r.EntityID == entityID && r.IsCurrent {
			return r, true, nil
		}
	}
	return domain.Route{}, false, nil
}

func (t *blockTx) RoutesByTitleSlug(ctx context.Context, entityType domain.EntityType, ownerID int64, titleSlug string) ([]domain.Route, error) {
	routes := []domain.Route{}
	for _, r := range t.state.routes {
		if r.EntityType == entityType && r.OwnerID == ownerID && r.TitleSlug == titleSlug {
			routes = append(routes, r)
		}
	}
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].CollisionID < routes[j].CollisionID })
	return routes, nil
}

func (t *blockTx) RoutesForEntity(ctx context.Context, entityType domain.EntityType, entityID int64) ([]domain.Route, error) {
	routes := []domain.Route{}
	for _, r := range t.state.routes {
		if r.EntityType == entityType && r.EntityID == entityID {
			routes = append(routes, r)
		}
	}
	return routes, nil
}

func (t *blockTx) SlugTaken(ctx context.Context, entityType domain.EntityType, ownerID int64, slug string) (bool, error) {
	for _, r := range t.state.routes {
		if r.EntityType == entityType && r.OwnerID == ownerID && r.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (t *blockTx) InsertRoute(ctx context.Context, route domain.Route) error {
	taken, _ := t.SlugTaken(ctx, route.EntityType, route.OwnerID, route.Slug)
	if taken {
		return fmt.Errorf("failed to insert route %q: slug already exists for owner %d", route.Slug, route.OwnerID)
	}
	if route.IsCurrent {
		if _, ok, _ := t.CurrentRoute(ctx, route.EntityType, route.EntityID); ok {
			return fmt.Errorf("failed to insert route %q: %s %d already has a current route", route.Slug, route.EntityType, route.EntityID)
		}
	}
	t.state.routes = append(t.state.routes, route)
	return nil
}

func (t *blockTx) MarkRouteNotCurrent(ctx context.Context, entityType domain.EntityType, entityID int64) error {
	for i := range t.state.routes {
		r := &t.state.routes[i]
		if r.EntityType == entityType && r.EntityID == entityID {
			r.IsCurrent = false
		}
	}
	return nil
}

func (t *blockTx) GetGrant(ctx context.Context, granteeAddress string, userID int64) (domain.Grant, bool, error) {
	grant, ok := t.state.grants[grantKey(granteeAddress, userID)]
	return grant, ok, nil
}

func (t *blockTx) RecordBlock(ctx context.Context, block domain.IndexedBlock) error {
	for i := range t.state.blocks {
		if t.state.blocks[i].Number == block.Number {
			t.state.blocks[i] = block
			return nil
		}
	}
	t.state.blocks = append(t.state.blocks, block)
	return nil
}

func (t *blockTx) LastIndexedBlock(ctx context.Context) (domain.IndexedBlock, bool, error) {
	var (
		last  domain.IndexedBlock
		found bool
	)
	for _, b := range t.state.blocks {
		if !found || b.Number > last.Number {
			last, found = b, true
		}
	}
	return last, found, nil
}

func (t *blockTx) RecordIngestionLog(ctx context.Context, blockNumber int64, entries []domain.IngestionLogEntry) error {
	kept := make([]domain.IngestionLogEntry, 0, len(t.state.logs)+len(entries))
	for _, entry := range t.state.logs {
		if entry.BlockNumber != blockNumber {
			kept = append(kept, entry)
		}
	}
	for _, entry := range entries {
		entry.BlockNumber = blockNumber
		kept = append(kept, entry)
	}
	t.state.logs = kept
	return nil
}

func (t *blockTx) IngestionLog(ctx context.Context, blockNumber int64) ([]domain.IngestionLogEntry, error) {
	logs := []domain.IngestionLogEntry{}
	for _, entry := range t.state.logs {
		if entry.BlockNumber == blockNumber {
			logs = append(logs, entry)
		}
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})
	return logs, nil
}
