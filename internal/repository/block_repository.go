package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entityindexer/internal/domain"
)

// RecordBlock stores the checkpoint for a committed block.
func (r *pgBlockTx) RecordBlock(ctx context.Context, block domain.IndexedBlock) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO indexed_blocks (block_number, block_hash, accepted, skipped, indexed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (block_number)
		 DO UPDATE SET block_hash = EXCLUDED.block_hash, accepted = EXCLUDED.accepted,
		     skipped = EXCLUDED.skipped, indexed_at = EXCLUDED.indexed_at`,
		block.Number,
		block.Hash,
		block.Accepted,
		block.Skipped,
		block.IndexedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record indexed block %d: %w", block.Number, err)
	}
	return nil
}

func (r *pgBlockTx) LastIndexedBlock(ctx context.Context) (domain.IndexedBlock, bool, error) {
	var block domain.IndexedBlock
	err := r.tx.QueryRow(ctx,
		`SELECT block_number, block_hash, accepted, skipped, indexed_at
		 FROM indexed_blocks
		 ORDER BY block_number DESC
		 LIMIT 1`,
	).Scan(&block.Number, &block.Hash, &block.Accepted, &block.Skipped, &block.IndexedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IndexedBlock{}, false, nil
	}
	if err != nil {
		return domain.IndexedBlock{}, false, fmt.Errorf("failed to get last indexed block: %w", err)
	}
	return block, true, nil
}
