package domain

import "time"

// IngestionLogEntry records a change request of a committed block that was
// not applied, so operators can see why.
type IngestionLogEntry struct {
	BlockNumber int64         `json:"block_number"`
	TxHash      string        `json:"tx_hash"`
	TxIndex     int           `json:"tx_index"`
	LogIndex    int           `json:"log_index"`
	EntityType  EntityType    `json:"entity_type,omitempty"`
	EntityID    int64         `json:"entity_id"`
	Action      Action        `json:"action,omitempty"`
	Status      OutcomeStatus `json:"status"`
	Reason      string        `json:"reason"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IngestionLog lists the outcomes of result that were not accepted.
func (r BlockResult) IngestionLog(at time.Time) []IngestionLogEntry {
	entries := make([]IngestionLogEntry, 0, r.Skipped())
	for _, outcome := range r.Outcomes {
		if outcome.Status == OutcomeAccepted {
			continue
		}
		entries = append(entries, IngestionLogEntry{
			BlockNumber: r.BlockNumber,
			TxHash:      outcome.TxHash,
			TxIndex:     outcome.TxIndex,
			LogIndex:    outcome.LogIndex,
			EntityType:  outcome.EntityType,
			EntityID:    outcome.EntityID,
			Action:      outcome.Action,
			Status:      outcome.Status,
			Reason:      outcome.Reason,
			CreatedAt:   at,
		})
	}
	return entries
}
