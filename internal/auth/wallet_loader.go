package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/entityindexer/internal/domain"
)

// WalletLookup fetches wallets for a batch of users. Users without a current
// row are absent from the result.
type WalletLookup func(ctx context.Context, userIDs []int64) (map[int64]string, error)

// VersionReader is the slice of the entity store WalletsFromStore needs.
type VersionReader interface {
	CurrentVersions(ctx context.Context, entityType domain.EntityType, entityIDs []int64) (map[int64]domain.VersionedEntity, error)
}

// WalletsFromStore resolves wallets from current User rows.
func WalletsFromStore(reader VersionReader) WalletLookup {
	return func(ctx context.Context, userIDs []int64) (map[int64]string, error) {
		versions, err := reader.CurrentVersions(ctx, domain.EntityTypeUser, userIDs)
		if err != nil {
			return nil, err
		}
		wallets := make(map[int64]string, len(versions))
		for id, version := range versions {
			if wallet, ok := version.Properties["wallet"].(string); ok && wallet != "" {
				wallets[id] = wallet
			}
		}
		return wallets, nil
	}
}

// WalletLoader batches and caches wallet lookups for one block. Entries must
// be forgotten whenever the user's row changes.
type WalletLoader struct {
	loader *dataloader.Loader
}

type walletResult struct {
	wallet string
	found  bool
}

// NewWalletLoader creates a loader backed by lookup.
func NewWalletLoader(lookup WalletLookup) *WalletLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid user id key: %w", err)}}
			}
			ids[i] = id
		}

		wallets, err := lookup(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			wallet, ok := wallets[id]
			results[i] = &dataloader.Result{Data: walletResult{wallet: wallet, found: ok}}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond))
	return &WalletLoader{loader: loader}
}

func userKey(userID int64) dataloader.Key {
	return dataloader.StringKey(strconv.FormatInt(userID, 10))
}

// Prefetch loads wallets for every user in one batch.
func (l *WalletLoader) Prefetch(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make(dataloader.Keys, 0, len(userIDs))
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, userKey(id))
	}
	_, errs := l.loader.LoadMany(ctx, keys)()
	for _, err := range errs {
		if err != nil {
			// A failed batch must not stay cached.
			l.loader.ClearAll()
			return fmt.Errorf("failed to prefetch wallets: %w", err)
		}
	}
	return nil
}

// Wallet implements WalletRegistry.
func (l *WalletLoader) Wallet(ctx context.Context, userID int64) (string, bool, error) {
	data, err := l.loader.Load(ctx, userKey(userID))()
	if err != nil {
		l.loader.Clear(ctx, userKey(userID))
		return "", false, err
	}
	result, ok := data.(walletResult)
	if !ok {
		return "", false, fmt.Errorf("unexpected wallet loader result %T", data)
	}
	return result.wallet, result.found, nil
}

// Forget drops the cached wallet of userID.
func (l *WalletLoader) Forget(ctx context.Context, userID int64) {
	l.loader.Clear(ctx, userKey(userID))
}
