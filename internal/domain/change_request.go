package domain

import "time"

// MetadataPayload carries the metadata attached to a change request. Data is
// either the inline document or the document resolved from CID.
type MetadataPayload struct {
	CID  string         `json:"cid,omitempty"`
	Data map[string]any `json:"data,omitempty"`
	Raw  string         `json:"raw,omitempty"`
}

// HasData reports whether a structured document is available.
func (m MetadataPayload) HasData() bool {
	return m.Data != nil
}

// Has reports whether key is present in the document.
func (m MetadataPayload) Has(key string) bool {
	if m.Data == nil {
		return false
	}
	_, ok := m.Data[key]
	return ok
}

// ChangeRequest is one decoded manage-entity event.
type ChangeRequest struct {
	EntityType     EntityType      `json:"entity_type"`
	EntityID       int64           `json:"entity_id"`
	ActingUserID   int64           `json:"acting_user_id"`
	Action         Action          `json:"action"`
	Metadata       MetadataPayload `json:"metadata"`
	Signer         string          `json:"signer"`
	BlockNumber    int64           `json:"block_number"`
	BlockTimestamp time.Time       `json:"block_timestamp"`
	TxHash         string          `json:"tx_hash"`
	TxIndex        int             `json:"tx_index"`
	LogIndex       int             `json:"log_index"`

	// Malformed holds the decoding failure; a malformed request is never applied.
	Malformed string `json:"malformed,omitempty"`
}

// IsMalformed reports whether the request failed to decode.
func (r ChangeRequest) IsMalformed() bool {
	return r.Malformed != ""
}

// Position returns the request's place in the ledger's total order.
func (r ChangeRequest) Position() Position {
	return Position{BlockNumber: r.BlockNumber, TxIndex: r.TxIndex, LogIndex: r.LogIndex}
}

// Position orders versions by block, then transaction, then event.
type Position struct {
	BlockNumber int64
	TxIndex     int
	LogIndex    int
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	if p.BlockNumber != other.BlockNumber {
		return p.BlockNumber < other.BlockNumber
	}
	if p.TxIndex != other.TxIndex {
		return p.TxIndex < other.TxIndex
	}
	return p.LogIndex < other.LogIndex
}
