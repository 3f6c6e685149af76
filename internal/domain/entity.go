package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// VersionedEntity is one immutable version of an entity. Exactly one row per
// (EntityType, EntityID) is current unless the entity was deleted.
type VersionedEntity struct {
	ID             int64          `json:"id"`
	EntityType     EntityType     `json:"entity_type"`
	EntityID       int64          `json:"entity_id"`
	OwnerUserID    int64          `json:"owner_user_id"`
	Properties     map[string]any `json:"properties"`
	IsCurrent      bool           `json:"is_current"`
	IsDelete       bool           `json:"is_delete"`
	BlockNumber    int64          `json:"block_number"`
	TxIndex        int            `json:"tx_index"`
	LogIndex       int            `json:"log_index"`
	BlockTimestamp time.Time      `json:"block_timestamp"`
	TxHash         string         `json:"tx_hash"`
}

// NewVersion builds the successor version for a change applied by req.
func NewVersion(req ChangeRequest, ownerUserID int64, properties map[string]any, isDelete bool) VersionedEntity {
	return VersionedEntity{
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		OwnerUserID:    ownerUserID,
		Properties:     copyProperties(properties),
		IsCurrent:      !isDelete,
		IsDelete:       isDelete,
		BlockNumber:    req.BlockNumber,
		TxIndex:        req.TxIndex,
		LogIndex:       req.LogIndex,
		BlockTimestamp: req.BlockTimestamp,
		TxHash:         req.TxHash,
	}
}

// Position returns the version's place in the ledger order.
func (e VersionedEntity) Position() Position {
	return Position{BlockNumber: e.BlockNumber, TxIndex: e.TxIndex, LogIndex: e.LogIndex}
}

// WithProperty returns a copy of the version with key set to value.
func (e VersionedEntity) WithProperty(key string, value any) VersionedEntity {
	next := e
	next.Properties = copyProperties(e.Properties)
	next.Properties[key] = value
	return next
}

// WithCurrent returns a copy of the version with its current flag replaced.
func (e VersionedEntity) WithCurrent(current bool) VersionedEntity {
	next := e
	next.Properties = copyProperties(e.Properties)
	next.IsCurrent = current
	return next
}

// GetPropertiesAsJSONB encodes the properties for a JSONB column.
func (e *VersionedEntity) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return json.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	properties := map[string]any{}
	if len(propertiesJSON) == 0 {
		return properties, nil
	}
	err := json.Unmarshal(propertiesJSON, &properties)
	return properties, err
}

// DecodeProperties unmarshals the properties into a typed entity struct.
func (e VersionedEntity) DecodeProperties(target any) error {
	raw, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties of %s %d: %w", e.EntityType, e.EntityID, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode properties of %s %d: %w", e.EntityType, e.EntityID, err)
	}
	return nil
}

// EncodeProperties converts a typed entity struct into a properties map.
func EncodeProperties(source any) (map[string]any, error) {
	raw, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	return FromJSONBProperties(raw)
}

// copyProperties makes a shallow copy so versions never share a map.
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}
