package decoder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpattn/entityindexer/internal/domain"
)

// ParseMetadata interprets the metadata string of an event. It accepts an
// empty string, an inline {"cid": ..., "data": {...}} document, a bare JSON
// object taken as the document itself, or a CID present in resolved. Any
// other string is kept as Raw. A string that opens a JSON object but does not
// parse is an error.
func ParseMetadata(raw string, resolved map[string]map[string]any) (domain.MetadataPayload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.MetadataPayload{}, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var document map[string]any
		if err := json.Unmarshal([]byte(trimmed), &document); err != nil {
			return domain.MetadataPayload{}, fmt.Errorf("invalid metadata json: %w", err)
		}
		return inlineMetadata(document, resolved)
	}

	if data, ok := resolved[trimmed]; ok {
		return domain.MetadataPayload{CID: trimmed, Data: cloneDocument(data)}, nil
	}
	return domain.MetadataPayload{Raw: trimmed}, nil
}

func inlineMetadata(document map[string]any, resolved map[string]map[string]any) (domain.MetadataPayload, error) {
	rawCID, hasCID := document["cid"]
	rawData, hasData := document["data"]
	if !hasCID && !hasData {
		return domain.MetadataPayload{Data: document}, nil
	}

	var payload domain.MetadataPayload
	if hasCID {
		cid, ok := rawCID.(string)
		if !ok {
			return domain.MetadataPayload{}, fmt.Errorf("metadata cid must be a string")
		}
		payload.CID = cid
	}
	if hasData && rawData != nil {
		data, ok := rawData.(map[string]any)
		if !ok {
			return domain.MetadataPayload{}, fmt.Errorf("metadata data must be an object")
		}
		payload.Data = data
	}
	if payload.Data == nil && payload.CID != "" {
		if data, ok := resolved[payload.CID]; ok {
			payload.Data = cloneDocument(data)
		}
	}
	return payload, nil
}

// cloneDocument copies the top level so requests sharing a CID do not share a map.
func cloneDocument(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
