package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entityindexer/internal/domain"
)

// RecordIngestionLog replaces the skipped-request log of a block.
func (r *pgBlockTx) RecordIngestionLog(ctx context.Context, blockNumber int64, entries []domain.IngestionLogEntry) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM ingestion_logs WHERE block_number = $1`, blockNumber); err != nil {
		return fmt.Errorf("failed to clear ingestion log for block %d: %w", blockNumber, err)
	}
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(
			`INSERT INTO ingestion_logs (block_number, tx_hash, tx_index, log_index, entity_type, entity_id, action, status, reason, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			blockNumber,
			entry.TxHash,
			entry.TxIndex,
			entry.LogIndex,
			string(entry.EntityType),
			entry.EntityID,
			string(entry.Action),
			string(entry.Status),
			entry.Reason,
			entry.CreatedAt,
		)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record ingestion log for block %d: %w", blockNumber, err)
	}
	return nil
}

func (r *pgBlockTx) IngestionLog(ctx context.Context, blockNumber int64) ([]domain.IngestionLogEntry, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT block_number, tx_hash, tx_index, log_index, entity_type, entity_id, action, status, reason, created_at
		 FROM ingestion_logs
		 WHERE block_number = $1
		 ORDER BY tx_index, log_index`,
		blockNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion log: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry      domain.IngestionLogEntry
			entityType string
			action     string
			status     string
		)
		if scanErr := rows.Scan(
			&entry.BlockNumber,
			&entry.TxHash,
			&entry.TxIndex,
			&entry.LogIndex,
			&entityType,
			&entry.EntityID,
			&action,
			&status,
			&entry.Reason,
			&entry.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}
		entry.EntityType = domain.EntityType(entityType)
		entry.Action = domain.Action(action)
		entry.Status = domain.OutcomeStatus(status)
		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion log: %w", rowsErr)
	}

	return logs, nil
}
