package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entityindexer/internal/db"
	"github.com/rpattn/entityindexer/internal/domain"
)

// pgStore implements Store on top of a pgx connection pool.
type pgStore struct {
	conn *db.Connection
}

// NewStore creates a Postgres backed store.
func NewStore(conn *db.Connection) Store {
	return &pgStore{conn: conn}
}

// WithBlockTx runs fn inside one database transaction.
func (s *pgStore) WithBlockTx(ctx context.Context, fn func(BlockTx) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgBlockTx{tx: tx})
	})
}

// WithDiscardedTx runs fn inside a transaction that is rolled back.
func (s *pgStore) WithDiscardedTx(ctx context.Context, fn func(BlockTx) error) error {
	return s.conn.WithRollbackTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgBlockTx{tx: tx})
	})
}

// UpsertGrant creates or replaces a delegated authorization.
func (s *pgStore) UpsertGrant(ctx context.Context, grant domain.Grant) error {
	scopes := grant.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.conn.Pool.Exec(
		ctx,
		`INSERT INTO grants (grantee_address, user_id, is_revoked, scopes)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (grantee_address, user_id)
		 DO UPDATE SET is_revoked = EXCLUDED.is_revoked, scopes = EXCLUDED.scopes, updated_at = now()`,
		strings.ToLower(grant.GranteeAddress),
		grant.UserID,
		grant.IsRevoked,
		scopes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

// pgBlockTx implements BlockTx for a single pgx transaction.
type pgBlockTx struct {
	tx pgx.Tx
}
