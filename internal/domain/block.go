package domain

import (
	"math/big"
	"time"
)

// Block is one ledger block as handed to the indexer by the block supplier.
type Block struct {
	Number       int64                     `json:"number"`
	Hash         string                    `json:"hash"`
	ParentHash   string                    `json:"parent_hash,omitempty"`
	Timestamp    time.Time                 `json:"timestamp"`
	Transactions []Transaction             `json:"transactions"`
	Metadata     map[string]map[string]any `json:"metadata,omitempty"` // resolved off-chain documents keyed by CID
}

// Transaction groups the manage-entity events emitted by one ledger transaction.
type Transaction struct {
	Hash   string     `json:"hash"`
	Events []RawEvent `json:"events"`
}

// RawEvent is an undecoded ManageEntity event.
type RawEvent struct {
	UserID     *big.Int `json:"user_id"`
	Signer     string   `json:"signer"`
	EntityType string   `json:"entity_type"`
	EntityID   *big.Int `json:"entity_id"`
	Metadata   string   `json:"metadata"`
	Action     string   `json:"action"`

	// DecodeError is set when the event could not be unpacked from its log.
	DecodeError string `json:"-"`
}

// IndexedBlock records a block whose writes were committed.
type IndexedBlock struct {
	Number    int64
	Hash      string
	Accepted  int
	Skipped   int
	IndexedAt time.Time
}
